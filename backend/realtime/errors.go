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

package realtime

import (
	"errors"

	"github.com/efchatnet/memories/backend/storage"
)

var (
	ErrForbidden      = errors.New("not a member of this group")
	ErrInvalidMessage = errors.New("message has neither content nor media")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrUnknownEvent   = errors.New("unknown event")
	ErrNotFound       = storage.ErrNotFound
)

// clientMessage maps a handler failure to the text sent in an error event.
func clientMessage(action string, err error) string {
	switch {
	case errors.Is(err, ErrForbidden):
		return "You are not a member of this group"
	case errors.Is(err, ErrNotFound):
		return "Message not found or unauthorized"
	case errors.Is(err, ErrInvalidMessage):
		return "Message must have content or media"
	case errors.Is(err, ErrInvalidPayload):
		return "Invalid payload"
	case errors.Is(err, ErrUnknownEvent):
		return "Unknown event"
	default:
		return "Failed to " + action
	}
}
