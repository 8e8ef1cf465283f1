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
	"encoding/json"
	"time"

	"github.com/efchatnet/memories/backend/models"
)

// Inbound events
const (
	EventJoinGroup     = "join:group"
	EventLeaveGroup    = "leave:group"
	EventMessageSend   = "message:send"
	EventMessageEdit   = "message:edit"
	EventMessageDelete = "message:delete"
	EventTypingStart   = "typing:start"
	EventTypingStop    = "typing:stop"
	EventMessageRead   = "message:read"
)

// Outbound events
const (
	EventMessageNew     = "message:new"
	EventMessageSent    = "message:sent"
	EventMessageEdited  = "message:edited"
	EventMessageDeleted = "message:deleted"
	EventUserJoined     = "user:joined"
	EventUserLeft       = "user:left"
	EventTypingUser     = "typing:user"
	EventError          = "error"
)

var inboundEvents = map[string]struct{}{
	EventJoinGroup:     {},
	EventLeaveGroup:    {},
	EventMessageSend:   {},
	EventMessageEdit:   {},
	EventMessageDelete: {},
	EventTypingStart:   {},
	EventTypingStop:    {},
	EventMessageRead:   {},
}

// eventLabel bounds metric labels to the known inbound events.
func eventLabel(event string) string {
	if _, ok := inboundEvents[event]; ok {
		return event
	}
	return "unknown"
}

func PersonalRoom(userID string) string { return "personal:" + userID }

func GroupRoom(groupID string) string { return "group:" + groupID }

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type SendRequest struct {
	GroupID     string             `json:"groupId" validate:"required"`
	Content     string             `json:"content"`
	MessageType models.MessageType `json:"messageType" validate:"omitempty,oneof=text image voice video file"`
	MediaURL    *string            `json:"mediaUrl"`
	ReplyToID   *string            `json:"replyToId"`
	// TempID is chosen by the client and echoed back untouched.
	TempID json.RawMessage `json:"tempId"`
}

type EditRequest struct {
	MessageID string `json:"messageId" validate:"required"`
	Content   string `json:"content" validate:"required"`
}

type DeleteRequest struct {
	MessageID string `json:"messageId" validate:"required"`
}

type ReadRequest struct {
	MessageID string `json:"messageId" validate:"required"`
}

type SenderPayload struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	DisplayName string  `json:"displayName"`
	AvatarURL   *string `json:"avatarUrl"`
}

type MessagePayload struct {
	ID          string             `json:"id"`
	GroupID     string             `json:"groupId"`
	Sender      SenderPayload      `json:"sender"`
	MessageType models.MessageType `json:"messageType"`
	Content     string             `json:"content"`
	MediaURL    *string            `json:"mediaUrl"`
	ReplyToID   *string            `json:"replyToId"`
	CreatedAt   time.Time          `json:"createdAt"`
	IsEdited    bool               `json:"isEdited"`
	IsBot       bool               `json:"isBot,omitempty"`
}

type SentPayload struct {
	TempID    json.RawMessage `json:"tempId"`
	MessageID string          `json:"messageId"`
}

type EditedPayload struct {
	MessageID string    `json:"messageId"`
	Content   string    `json:"content"`
	IsEdited  bool      `json:"isEdited"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type DeletedPayload struct {
	MessageID string `json:"messageId"`
}

type PresencePayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type TypingPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

type Reader struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type ReadPayload struct {
	MessageID string `json:"messageId"`
	ReadBy    Reader `json:"readBy"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func newMessagePayload(msg models.Message, sender models.Identity, isBot bool) MessagePayload {
	return MessagePayload{
		ID:      msg.ID,
		GroupID: msg.GroupID,
		Sender: SenderPayload{
			ID:          sender.ID,
			Username:    sender.Username,
			DisplayName: sender.DisplayName,
			AvatarURL:   sender.AvatarURL,
		},
		MessageType: msg.MessageType,
		Content:     msg.Content,
		MediaURL:    msg.MediaURL,
		ReplyToID:   msg.ReplyToID,
		CreatedAt:   msg.CreatedAt,
		IsEdited:    msg.IsEdited,
		IsBot:       isBot,
	}
}

// Encode renders an outbound frame.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
