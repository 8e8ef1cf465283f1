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

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/efchatnet/memories/backend/models"
)

// ErrNotFound is returned when a row does not exist or the id is not a valid
// identifier for the backing store.
var ErrNotFound = errors.New("not found")

type MembershipStore interface {
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	GroupsForUser(ctx context.Context, userID string) ([]string, error)
	GroupMembers(ctx context.Context, groupID string) ([]models.GroupMember, error)
}

// NewMessage is the input for InsertMessage. The store assigns id and
// timestamps.
type NewMessage struct {
	GroupID     string
	SenderID    string
	MessageType models.MessageType
	Content     string
	MediaURL    *string
	ReplyToID   *string
}

type MessageStore interface {
	InsertMessage(ctx context.Context, msg NewMessage) (models.Message, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	UpdateMessageContent(ctx context.Context, messageID, content string) (models.Message, error)
	SoftDeleteMessage(ctx context.Context, messageID string) error

	// RecentMessages returns up to limit non-deleted messages, newest first.
	RecentMessages(ctx context.Context, groupID string, limit int) ([]models.MessageView, error)
	// History returns up to limit non-deleted messages created before the
	// cursor (if any), newest first, with read receipts attached.
	History(ctx context.Context, groupID string, before *time.Time, limit int) ([]models.MessageView, error)

	// InsertReadReceipt reports whether a new receipt was recorded.
	InsertReadReceipt(ctx context.Context, messageID, userID string) (bool, error)
	UnreadCounts(ctx context.Context, userID string) ([]models.UnreadCount, error)
}

type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (models.Identity, error)
	EnsureBotProfile(ctx context.Context) error
}

type CapsuleStore interface {
	DueCapsules(ctx context.Context, now time.Time) ([]models.Capsule, error)
	// UnlockCapsule transitions a locked capsule and reports whether this
	// call performed the transition.
	UnlockCapsule(ctx context.Context, capsuleID string) (bool, error)
	GetCapsule(ctx context.Context, capsuleID string) (models.Capsule, error)
}

type Store interface {
	MembershipStore
	MessageStore
	ProfileStore
	CapsuleStore
}
