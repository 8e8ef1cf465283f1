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
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/efchatnet/memories/backend/metrics"
	"github.com/efchatnet/memories/backend/models"
	"github.com/efchatnet/memories/backend/storage"
)

const writeWait = 10 * time.Second

// Authenticator resolves the identity behind an upgrade request.
type Authenticator interface {
	Authenticate(r *http.Request) (models.Identity, error)
}

type Options struct {
	PingInterval    time.Duration
	PongTimeout     time.Duration
	MaxMessageBytes int64
	SendBuffer      int
	// CheckOrigin is passed to the upgrader. Nil accepts any origin.
	CheckOrigin func(r *http.Request) bool
}

func DefaultOptions() Options {
	return Options{
		PingInterval:    25 * time.Second,
		PongTimeout:     60 * time.Second,
		MaxMessageBytes: 64 << 10,
		SendBuffer:      256,
	}
}

// Server upgrades authenticated requests and runs the per-connection pumps.
type Server struct {
	ctx        context.Context
	hub        *Hub
	engine     *Engine
	auth       Authenticator
	membership storage.MembershipStore
	opts       Options
	upgrader   websocket.Upgrader
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewServer returns a websocket handler. Engine calls run on ctx rather than
// on the request context so in-flight work outlives a dropped client.
func NewServer(ctx context.Context, hub *Hub, engine *Engine, auth Authenticator,
	membership storage.MembershipStore, opts Options, logger *slog.Logger, m *metrics.Metrics) *Server {
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Server{
		ctx:        ctx,
		hub:        hub,
		engine:     engine,
		auth:       auth,
		membership: membership,
		opts:       opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger:  logger,
		metrics: m,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := s.auth.Authenticate(r)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"message": "Authentication error",
		})
		return
	}

	groups, err := s.membership.GroupsForUser(s.ctx, identity.ID)
	if err != nil {
		s.logger.Error("Failed to load groups", "user_id", identity.ID, "error", err)
		http.Error(w, "Failed to load groups", http.StatusInternalServerError)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Debug("Websocket upgrade failed", "user_id", identity.ID, "error", err)
		return
	}

	c := NewConn(identity, ws, s.opts.SendBuffer)
	s.hub.Register(c, groups)
	s.metrics.ConnOpened()
	s.logger.Info("User connected", "conn_id", c.ID, "user_id", identity.ID, "groups", len(groups))

	go s.writePump(c)
	go s.readPump(c)
}

func (s *Server) readPump(c *Conn) {
	defer func() {
		s.hub.Unregister(c)
		c.Close()
		s.metrics.ConnClosed()
		s.logger.Info("User disconnected", "conn_id", c.ID, "user_id", c.Identity.ID)
	}()

	c.ws.SetReadLimit(s.opts.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("Websocket read failed", "conn_id", c.ID, "error", err)
			}
			return
		}
		s.handle(c, data)
	}
}

// handle keeps a panic in one event from taking the connection down.
func (s *Server) handle(c *Conn, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic while handling event", "conn_id", c.ID, "panic", r)
		}
	}()
	s.engine.Handle(s.ctx, c, data)
}

func (s *Server) writePump(c *Conn) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			s.writeClose(c, websocket.CloseNormalClosure)
			return
		case <-s.ctx.Done():
			s.writeClose(c, websocket.CloseGoingAway)
			return
		}
	}
}

func (s *Server) writeClose(c *Conn, code int) {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""))
}
