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

package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/samber/lo"

	"github.com/efchatnet/memories/backend/middleware"
	"github.com/efchatnet/memories/backend/models"
	"github.com/efchatnet/memories/backend/storage"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type ChatStore interface {
	storage.MembershipStore
	storage.MessageStore
}

type ChatHandler struct {
	store  ChatStore
	logger *slog.Logger
}

func NewChatHandler(store ChatStore, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{store: store, logger: logger}
}

type historyMessage struct {
	ID          string               `json:"id"`
	GroupID     string               `json:"groupId"`
	Sender      models.Identity      `json:"sender"`
	MessageType models.MessageType   `json:"messageType"`
	Content     string               `json:"content"`
	MediaURL    *string              `json:"mediaUrl"`
	ReplyToID   *string              `json:"replyToId"`
	IsEdited    bool                 `json:"isEdited"`
	CreatedAt   time.Time            `json:"createdAt"`
	ReadBy      []models.ReadReceipt `json:"readBy"`
}

// History serves GET /api/chat/{groupId}/messages, oldest first.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFrom(r.Context())
	groupID := mux.Vars(r)["groupId"]

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	var before *time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid before cursor")
			return
		}
		before = &t
	}

	isMember, err := h.store.IsMember(r.Context(), groupID, identity.ID)
	if err != nil {
		h.logger.Error("Failed to check membership", "group_id", groupID, "user_id", identity.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load messages")
		return
	}
	if !isMember {
		writeError(w, http.StatusForbidden, "You are not a member of this group")
		return
	}

	views, err := h.store.History(r.Context(), groupID, before, limit)
	if err != nil {
		h.logger.Error("Failed to load history", "group_id", groupID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load messages")
		return
	}

	messages := lo.Map(lo.Reverse(views), func(v models.MessageView, _ int) historyMessage {
		return historyMessage{
			ID:          v.ID,
			GroupID:     v.GroupID,
			Sender:      v.Sender,
			MessageType: v.MessageType,
			Content:     v.Content,
			MediaURL:    v.MediaURL,
			ReplyToID:   v.ReplyToID,
			IsEdited:    v.IsEdited,
			CreatedAt:   v.CreatedAt,
			ReadBy:      lo.Ternary(v.ReadBy == nil, []models.ReadReceipt{}, v.ReadBy),
		}
	})

	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// Unread serves GET /api/chat/unread.
func (h *ChatHandler) Unread(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFrom(r.Context())

	counts, err := h.store.UnreadCounts(r.Context(), identity.ID)
	if err != nil {
		h.logger.Error("Failed to count unread messages", "user_id", identity.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to count unread messages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"unreadCounts": counts})
}

// Members serves GET /api/chat/{groupId}/members.
func (h *ChatHandler) Members(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFrom(r.Context())
	groupID := mux.Vars(r)["groupId"]

	isMember, err := h.store.IsMember(r.Context(), groupID, identity.ID)
	if err != nil {
		h.logger.Error("Failed to check membership", "group_id", groupID, "user_id", identity.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load members")
		return
	}
	if !isMember {
		writeError(w, http.StatusForbidden, "You are not a member of this group")
		return
	}

	members, err := h.store.GroupMembers(r.Context(), groupID)
	if err != nil {
		h.logger.Error("Failed to list members", "group_id", groupID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load members")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"members": lo.Ternary(members == nil, []models.GroupMember{}, members)})
}
