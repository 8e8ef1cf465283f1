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

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageVoice MessageType = "voice"
	MessageVideo MessageType = "video"
	MessageFile  MessageType = "file"
)

// Tombstone replaces the content of a soft-deleted message.
const Tombstone = "[Message deleted]"

// Message is a persisted group chat message. Deleted messages keep their row
// with IsDeleted set and Content replaced by Tombstone.
type Message struct {
	ID          string      `json:"id" db:"id"`
	GroupID     string      `json:"groupId" db:"group_id"`
	SenderID    string      `json:"senderId" db:"sender_id"`
	MessageType MessageType `json:"messageType" db:"message_type"`
	Content     string      `json:"content" db:"content"`
	MediaURL    *string     `json:"mediaUrl" db:"media_url"`
	ReplyToID   *string     `json:"replyToId" db:"reply_to_id"`
	IsEdited    bool        `json:"isEdited" db:"is_edited"`
	IsDeleted   bool        `json:"isDeleted" db:"is_deleted"`
	CreatedAt   time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time   `json:"updatedAt" db:"updated_at"`
}

type ReadReceipt struct {
	MessageID string    `json:"messageId" db:"message_id"`
	UserID    string    `json:"userId" db:"user_id"`
	ReadAt    time.Time `json:"readAt" db:"read_at"`
}

// MessageView is a message joined with its sender profile and read receipts,
// as served by history queries.
type MessageView struct {
	Message
	Sender Identity      `json:"sender"`
	ReadBy []ReadReceipt `json:"readBy"`
}

type UnreadCount struct {
	GroupID     string `json:"groupId" db:"group_id"`
	UnreadCount int    `json:"unreadCount" db:"unread_count"`
}
