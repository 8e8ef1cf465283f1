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
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/memories/backend/bot"
	"github.com/efchatnet/memories/backend/middleware"
	"github.com/efchatnet/memories/backend/models"
	"github.com/efchatnet/memories/backend/storage"
	"github.com/efchatnet/memories/backend/storage/memory"
)

var (
	alice = models.Identity{ID: "u-alice", Username: "alice"}
	bob   = models.Identity{ID: "u-bob", Username: "bob"}
	eve   = models.Identity{ID: "u-eve", Username: "eve"}
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func newRouter(store *memory.Store) *mux.Router {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	chat := NewChatHandler(store, log)
	game := NewGameHandler(bot.NewGames(func(int) int { return 0 }))
	capsules := NewCapsuleHandler(store, log, nil)

	r := mux.NewRouter()
	r.HandleFunc("/api/chat/unread", chat.Unread).Methods(http.MethodGet)
	r.HandleFunc("/api/chat/{groupId}/messages", chat.History).Methods(http.MethodGet)
	r.HandleFunc("/api/chat/{groupId}/members", chat.Members).Methods(http.MethodGet)
	r.HandleFunc("/api/game/tod", game.TruthOrDare).Methods(http.MethodPost)
	r.HandleFunc("/api/game/sike", game.Sike).Methods(http.MethodGet)
	r.HandleFunc("/api/capsules/{id}/unlock", capsules.Unlock).Methods(http.MethodPost)
	return r
}

func do(t *testing.T, r *mux.Router, as models.Identity, method, target, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req = req.WithContext(middleware.WithIdentity(req.Context(), as))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec.Code, env
}

func TestHistory(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := memory.NewStore()
	store.AddProfile(alice)
	store.AddMember("g1", alice.ID)
	store.AddMember("g1", bob.ID)
	first, _ := store.InsertMessage(ctx, storage.NewMessage{GroupID: "g1", SenderID: alice.ID, Content: "first"})
	gone, _ := store.InsertMessage(ctx, storage.NewMessage{GroupID: "g1", SenderID: alice.ID, Content: "gone"})
	_, _ = store.InsertMessage(ctx, storage.NewMessage{GroupID: "g1", SenderID: alice.ID, Content: "last"})
	_ = store.SoftDeleteMessage(ctx, gone.ID)
	_, _ = store.InsertReadReceipt(ctx, first.ID, bob.ID)
	router := newRouter(store)

	code, env := do(t, router, bob, http.MethodGet, "/api/chat/g1/messages", "")
	req.Equal(http.StatusOK, code)
	var data struct {
		Messages []historyMessage `json:"messages"`
	}
	req.NoError(json.Unmarshal(env.Data, &data))
	req.Len(data.Messages, 2)
	req.Equal("first", data.Messages[0].Content)
	req.Equal("last", data.Messages[1].Content)
	req.Equal("alice", data.Messages[0].Sender.Username)
	req.Len(data.Messages[0].ReadBy, 1)
	req.Empty(data.Messages[1].ReadBy)

	code, _ = do(t, router, bob, http.MethodGet, "/api/chat/g1/messages?limit=1", "")
	req.Equal(http.StatusOK, code)

	code, env = do(t, router, eve, http.MethodGet, "/api/chat/g1/messages", "")
	req.Equal(http.StatusForbidden, code)
	req.False(env.Success)

	code, _ = do(t, router, bob, http.MethodGet, "/api/chat/g1/messages?before=yesterday", "")
	req.Equal(http.StatusBadRequest, code)
}

func TestUnread(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := memory.NewStore()
	store.AddMember("g1", alice.ID)
	store.AddMember("g1", bob.ID)
	_, _ = store.InsertMessage(ctx, storage.NewMessage{GroupID: "g1", SenderID: alice.ID, Content: "ping"})

	code, env := do(t, newRouter(store), bob, http.MethodGet, "/api/chat/unread", "")
	req.Equal(http.StatusOK, code)
	req.JSONEq(`{"unreadCounts":[{"groupId":"g1","unreadCount":1}]}`, string(env.Data))
}

func TestMembers(t *testing.T) {
	req := require.New(t)
	store := memory.NewStore()
	store.AddMemberWithRole("g1", alice.ID, models.RoleAdmin)
	store.AddMember("g1", bob.ID)
	router := newRouter(store)

	code, env := do(t, router, bob, http.MethodGet, "/api/chat/g1/members", "")
	req.Equal(http.StatusOK, code)
	var data struct {
		Members []models.GroupMember `json:"members"`
	}
	req.NoError(json.Unmarshal(env.Data, &data))
	req.Len(data.Members, 2)
	req.Equal(models.RoleAdmin, data.Members[0].Role)
	req.Equal(models.RoleMember, data.Members[1].Role)

	code, _ = do(t, router, eve, http.MethodGet, "/api/chat/g1/members", "")
	req.Equal(http.StatusForbidden, code)
}

func TestGames(t *testing.T) {
	req := require.New(t)
	router := newRouter(memory.NewStore())

	code, env := do(t, router, alice, http.MethodPost, "/api/game/tod", `{"type":"dare"}`)
	req.Equal(http.StatusOK, code)
	req.JSONEq(`{"type":"dare","content":"Do 10 pushups right now."}`, string(env.Data))

	code, env = do(t, router, alice, http.MethodPost, "/api/game/tod", `{"type":"kiss"}`)
	req.Equal(http.StatusBadRequest, code)
	req.Equal("Invalid type. Use 'truth' or 'dare'.", env.Message)

	code, env = do(t, router, alice, http.MethodGet, "/api/game/sike", "")
	req.Equal(http.StatusOK, code)
	var q bot.SikeQuestion
	req.NoError(json.Unmarshal(env.Data, &q))
	req.NotEmpty(q.Answer)
}

func TestCapsuleUnlock(t *testing.T) {
	req := require.New(t)
	store := memory.NewStore()
	id := store.AddCapsule(models.Capsule{GroupID: "g1", CreatedBy: alice.ID, Title: "later", UnlockDate: time.Now().Add(time.Hour), IsLocked: true})
	router := newRouter(store)

	code, _ := do(t, router, bob, http.MethodPost, "/api/capsules/"+id+"/unlock", "")
	req.Equal(http.StatusForbidden, code)

	code, env := do(t, router, alice, http.MethodPost, "/api/capsules/"+id+"/unlock", "")
	req.Equal(http.StatusOK, code)
	var c models.Capsule
	req.NoError(json.Unmarshal(env.Data, &c))
	req.False(c.IsLocked)

	code, _ = do(t, router, alice, http.MethodPost, "/api/capsules/"+id+"/unlock", "")
	req.Equal(http.StatusConflict, code)

	code, _ = do(t, router, alice, http.MethodPost, "/api/capsules/missing/unlock", "")
	req.Equal(http.StatusNotFound, code)
}
