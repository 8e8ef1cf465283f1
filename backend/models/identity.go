// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package models

// BotID is the fixed profile id of the in-chat assistant.
const BotID = "00000000-0000-0000-0000-000000000001"

// Identity is an authenticated end-user or the bot actor. It is resolved once
// per connection and never changes for that connection's lifetime.
type Identity struct {
	ID          string  `json:"id" db:"id"`
	Username    string  `json:"username" db:"username"`
	DisplayName string  `json:"displayName" db:"display_name"`
	AvatarURL   *string `json:"avatarUrl" db:"avatar_url"`
}

// BotIdentity returns the profile the assistant posts as.
func BotIdentity() Identity {
	return Identity{
		ID:          BotID,
		Username:    "gemini",
		DisplayName: "Gemini AI ✨",
	}
}

func (i Identity) IsBot() bool {
	return i.ID == BotID
}
