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
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/efchatnet/memories/backend/bot"
)

type GameHandler struct {
	games    *bot.Games
	validate *validator.Validate
}

func NewGameHandler(games *bot.Games) *GameHandler {
	return &GameHandler{games: games, validate: validator.New()}
}

type truthOrDareRequest struct {
	Type string `json:"type" validate:"required,oneof=truth dare"`
}

// TruthOrDare serves POST /api/game/tod.
func (h *GameHandler) TruthOrDare(w http.ResponseWriter, r *http.Request) {
	var req truthOrDareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || h.validate.Struct(req) != nil {
		writeError(w, http.StatusBadRequest, "Invalid type. Use 'truth' or 'dare'.")
		return
	}

	content := h.games.Truth()
	if req.Type == "dare" {
		content = h.games.Dare()
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"type":    req.Type,
		"content": content,
	})
}

// Sike serves GET /api/game/sike.
func (h *GameHandler) Sike(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.games.Sike())
}
