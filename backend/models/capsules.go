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

import (
	"time"
)

// Capsule is a time-gated record. It starts locked and moves to unlocked
// exactly once, either by its creator or by the unlock sweep.
type Capsule struct {
	ID         string     `json:"id" db:"id"`
	GroupID    string     `json:"groupId" db:"group_id"`
	CreatedBy  string     `json:"createdBy" db:"created_by"`
	Title      string     `json:"title" db:"title"`
	UnlockDate time.Time  `json:"unlockDate" db:"unlock_date"`
	IsLocked   bool       `json:"isLocked" db:"is_locked"`
	UnlockedAt *time.Time `json:"unlockedAt,omitempty" db:"unlocked_at"`
}
