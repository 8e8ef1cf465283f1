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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/efchatnet/memories/backend/metrics"
	"github.com/efchatnet/memories/backend/middleware"
	"github.com/efchatnet/memories/backend/storage"
)

type CapsuleHandler struct {
	store   storage.CapsuleStore
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewCapsuleHandler(store storage.CapsuleStore, logger *slog.Logger, m *metrics.Metrics) *CapsuleHandler {
	return &CapsuleHandler{store: store, logger: logger, metrics: m}
}

// Unlock serves POST /api/capsules/{id}/unlock. Only the creator may open a
// capsule before its unlock date.
func (h *CapsuleHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFrom(r.Context())
	capsuleID := mux.Vars(r)["id"]

	capsule, err := h.store.GetCapsule(r.Context(), capsuleID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Capsule not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to load capsule", "capsule_id", capsuleID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to unlock capsule")
		return
	}
	if capsule.CreatedBy != identity.ID {
		writeError(w, http.StatusForbidden, "Only the creator can unlock this capsule")
		return
	}

	changed, err := h.store.UnlockCapsule(r.Context(), capsuleID)
	if err != nil {
		h.logger.Error("Failed to unlock capsule", "capsule_id", capsuleID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to unlock capsule")
		return
	}
	if !changed {
		writeError(w, http.StatusConflict, "Capsule is already unlocked")
		return
	}
	h.metrics.CapsulesUnlocked(1)

	capsule, err = h.store.GetCapsule(r.Context(), capsuleID)
	if err != nil {
		h.logger.Error("Failed to reload capsule", "capsule_id", capsuleID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to unlock capsule")
		return
	}
	h.logger.Info("Capsule unlocked early", "capsule_id", capsuleID, "user_id", identity.ID)
	writeJSON(w, http.StatusOK, capsule)
}
