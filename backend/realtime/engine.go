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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/efchatnet/memories/backend/metrics"
	"github.com/efchatnet/memories/backend/models"
	"github.com/efchatnet/memories/backend/storage"
)

// SideEffects receives every persisted human message. Dispatch must not
// block.
type SideEffects interface {
	Dispatch(msg models.Message, sender models.Identity)
}

type origin int

const (
	originHuman origin = iota
	originSystem
)

// Engine applies inbound events: it checks membership, persists, and fans
// out through the Broadcaster.
type Engine struct {
	store    storage.Store
	hub      *Hub
	out      Broadcaster
	effects  SideEffects
	validate *validator.Validate
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewEngine builds an engine that fans out through out. Pass the hub itself
// as out for a single instance.
func NewEngine(store storage.Store, hub *Hub, out Broadcaster, logger *slog.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		store:    store,
		hub:      hub,
		out:      out,
		validate: validator.New(),
		logger:   logger,
		metrics:  m,
	}
}

// SetSideEffects must be called before the engine serves traffic.
func (e *Engine) SetSideEffects(se SideEffects) {
	e.effects = se
}

func (e *Engine) Join(ctx context.Context, c *Conn, groupID string) error {
	if groupID == "" {
		return ErrInvalidPayload
	}
	ok, err := e.store.IsMember(ctx, groupID, c.Identity.ID)
	if err != nil {
		return fmt.Errorf("join %s: %w", groupID, err)
	}
	if !ok {
		return ErrForbidden
	}

	room := GroupRoom(groupID)
	e.hub.Join(c, room)
	return e.emit(ctx, room, c.ID, EventUserJoined, PresencePayload{
		UserID:   c.Identity.ID,
		Username: c.Identity.Username,
	})
}

func (e *Engine) Leave(ctx context.Context, c *Conn, groupID string) error {
	room := GroupRoom(groupID)
	if !e.hub.Leave(c, room) {
		return nil
	}
	return e.emit(ctx, room, c.ID, EventUserLeft, PresencePayload{
		UserID:   c.Identity.ID,
		Username: c.Identity.Username,
	})
}

func (e *Engine) Send(ctx context.Context, c *Conn, req SendRequest) error {
	if err := e.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if strings.TrimSpace(req.Content) == "" && (req.MediaURL == nil || *req.MediaURL == "") {
		return ErrInvalidMessage
	}
	if req.MessageType == "" {
		req.MessageType = models.MessageText
	}

	ok, err := e.store.IsMember(ctx, req.GroupID, c.Identity.ID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return ErrForbidden
	}

	msg, err := e.store.InsertMessage(ctx, storage.NewMessage{
		GroupID:     req.GroupID,
		SenderID:    c.Identity.ID,
		MessageType: req.MessageType,
		Content:     req.Content,
		MediaURL:    req.MediaURL,
		ReplyToID:   req.ReplyToID,
	})
	if err != nil {
		return err
	}

	return e.publish(ctx, msg, c.Identity, originHuman, func() error {
		return e.reply(c, EventMessageSent, SentPayload{TempID: req.TempID, MessageID: msg.ID})
	})
}

// SendSystem posts content as the bot. System messages never reach the side
// effect dispatcher.
func (e *Engine) SendSystem(ctx context.Context, groupID, content string) (models.Message, error) {
	bot := models.BotIdentity()
	msg, err := e.store.InsertMessage(ctx, storage.NewMessage{
		GroupID:     groupID,
		SenderID:    bot.ID,
		MessageType: models.MessageText,
		Content:     content,
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("save bot message: %w", err)
	}
	return msg, e.publish(ctx, msg, bot, originSystem, nil)
}

// publish broadcasts message:new, runs ack for the originating connection,
// then hands human messages to the side effect dispatcher. The message is
// already stored, so a failed broadcast is logged and the ack still goes out;
// clients recover the message from history.
func (e *Engine) publish(ctx context.Context, msg models.Message, sender models.Identity, o origin, ack func() error) error {
	payload := newMessagePayload(msg, sender, o == originSystem)
	if err := e.emit(ctx, GroupRoom(msg.GroupID), "", EventMessageNew, payload); err != nil {
		e.logger.Error("Failed to broadcast stored message", "group_id", msg.GroupID, "message_id", msg.ID, "error", err)
	}
	if ack != nil {
		if err := ack(); err != nil {
			return err
		}
	}
	if o == originHuman && e.effects != nil {
		e.effects.Dispatch(msg, sender)
	}
	return nil
}

func (e *Engine) Edit(ctx context.Context, c *Conn, req EditRequest) error {
	if err := e.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	msg, err := e.ownedMessage(ctx, c, req.MessageID)
	if err != nil {
		return err
	}
	if msg.IsDeleted {
		return ErrNotFound
	}

	updated, err := e.store.UpdateMessageContent(ctx, msg.ID, req.Content)
	if err != nil {
		return err
	}
	return e.emit(ctx, GroupRoom(updated.GroupID), "", EventMessageEdited, EditedPayload{
		MessageID: updated.ID,
		Content:   updated.Content,
		IsEdited:  true,
		UpdatedAt: updated.UpdatedAt,
	})
}

// Delete soft-deletes a message owned by the caller. Deleting an already
// deleted message succeeds again.
func (e *Engine) Delete(ctx context.Context, c *Conn, req DeleteRequest) error {
	if err := e.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	msg, err := e.ownedMessage(ctx, c, req.MessageID)
	if err != nil {
		return err
	}

	if err := e.store.SoftDeleteMessage(ctx, msg.ID); err != nil {
		return err
	}
	return e.emit(ctx, GroupRoom(msg.GroupID), "", EventMessageDeleted, DeletedPayload{MessageID: msg.ID})
}

func (e *Engine) ownedMessage(ctx context.Context, c *Conn, messageID string) (models.Message, error) {
	msg, err := e.store.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if msg.SenderID != c.Identity.ID {
		return models.Message{}, ErrNotFound
	}
	return msg, nil
}

// MarkRead records a receipt and notifies the sender's devices the first time
// this reader reads the message.
func (e *Engine) MarkRead(ctx context.Context, c *Conn, req ReadRequest) error {
	if err := e.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	msg, err := e.store.GetMessage(ctx, req.MessageID)
	if err != nil {
		return err
	}

	inserted, err := e.store.InsertReadReceipt(ctx, msg.ID, c.Identity.ID)
	if err != nil || !inserted {
		return err
	}
	return e.emit(ctx, PersonalRoom(msg.SenderID), "", EventMessageRead, ReadPayload{
		MessageID: msg.ID,
		ReadBy:    Reader{ID: c.Identity.ID, Username: c.Identity.Username},
	})
}

// Typing is relayed only for rooms the connection currently occupies.
func (e *Engine) Typing(ctx context.Context, c *Conn, groupID string, isTyping bool) error {
	room := GroupRoom(groupID)
	if groupID == "" || !e.hub.InRoom(c, room) {
		return nil
	}
	return e.emit(ctx, room, c.ID, EventTypingUser, TypingPayload{
		UserID:   c.Identity.ID,
		Username: c.Identity.Username,
		IsTyping: isTyping,
	})
}

// Handle decodes one inbound frame and applies it. Failures are reported to c
// only.
func (e *Engine) Handle(ctx context.Context, c *Conn, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		e.fail(c, "", "process event", ErrInvalidPayload)
		return
	}
	e.metrics.Event(eventLabel(env.Event))

	var err error
	action := ""
	switch env.Event {
	case EventJoinGroup:
		action = "join group"
		var groupID string
		if err = decode(env.Data, &groupID); err == nil {
			err = e.Join(ctx, c, groupID)
		}
	case EventLeaveGroup:
		action = "leave group"
		var groupID string
		if err = decode(env.Data, &groupID); err == nil {
			err = e.Leave(ctx, c, groupID)
		}
	case EventMessageSend:
		action = "send message"
		var req SendRequest
		if err = decode(env.Data, &req); err == nil {
			err = e.Send(ctx, c, req)
		}
	case EventMessageEdit:
		action = "edit message"
		var req EditRequest
		if err = decode(env.Data, &req); err == nil {
			err = e.Edit(ctx, c, req)
		}
	case EventMessageDelete:
		action = "delete message"
		var req DeleteRequest
		if err = decode(env.Data, &req); err == nil {
			err = e.Delete(ctx, c, req)
		}
	case EventTypingStart, EventTypingStop:
		var groupID string
		if decode(env.Data, &groupID) == nil {
			_ = e.Typing(ctx, c, groupID, env.Event == EventTypingStart)
		}
		return
	case EventMessageRead:
		var req ReadRequest
		if err = decode(env.Data, &req); err == nil {
			err = e.MarkRead(ctx, c, req)
		}
		if err != nil {
			e.logger.Debug("Read receipt not recorded", "conn_id", c.ID, "user_id", c.Identity.ID, "error", err)
		}
		return
	default:
		err = ErrUnknownEvent
		action = "process event"
	}

	if err != nil {
		e.fail(c, env.Event, action, err)
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return ErrInvalidPayload
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func (e *Engine) fail(c *Conn, event, action string, err error) {
	if !errors.Is(err, ErrForbidden) && !errors.Is(err, ErrNotFound) &&
		!errors.Is(err, ErrInvalidMessage) && !errors.Is(err, ErrInvalidPayload) &&
		!errors.Is(err, ErrUnknownEvent) {
		e.logger.Error("Event failed", "event", event, "conn_id", c.ID, "user_id", c.Identity.ID, "error", err)
	}
	if replyErr := e.reply(c, EventError, ErrorPayload{Message: clientMessage(action, err)}); replyErr != nil {
		e.logger.Error("Failed to encode error event", "error", replyErr)
	}
}

func (e *Engine) emit(ctx context.Context, room, except, event string, payload any) error {
	frame, err := Encode(event, payload)
	if err != nil {
		return err
	}
	return e.out.Broadcast(ctx, room, except, frame)
}

func (e *Engine) reply(c *Conn, event string, payload any) error {
	frame, err := Encode(event, payload)
	if err != nil {
		return err
	}
	e.hub.SendTo(c, frame)
	return nil
}
