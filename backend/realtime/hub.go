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
	"log/slog"
	"sync"

	"github.com/efchatnet/memories/backend/metrics"
)

// Broadcaster fans a frame out to every connection in a room, skipping the
// connection whose id equals except.
type Broadcaster interface {
	Broadcast(ctx context.Context, room, except string, frame []byte) error
}

// Hub is the in-memory room registry of this instance. Rooms are a routing
// cache rebuilt on connect; the database stays the membership authority.
type Hub struct {
	mu      sync.RWMutex
	conns   map[string]*Conn
	rooms   map[string]map[string]*Conn
	logger  *slog.Logger
	metrics *metrics.Metrics
}

var _ Broadcaster = (*Hub)(nil)

func NewHub(logger *slog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		conns:   make(map[string]*Conn),
		rooms:   make(map[string]map[string]*Conn),
		logger:  logger,
		metrics: m,
	}
}

// Register adds c to its personal room and to every group in groups.
func (h *Hub) Register(c *Conn, groups []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.conns[c.ID] = c
	h.joinLocked(c, PersonalRoom(c.Identity.ID))
	for _, groupID := range groups {
		h.joinLocked(c, GroupRoom(groupID))
	}
}

// Unregister removes c from every room. Calling it twice is harmless.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) Join(c *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c.ID]; !ok {
		return
	}
	h.joinLocked(c, room)
}

// Leave reports whether c was in room.
func (h *Hub) Leave(c *Conn, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := c.rooms[room]; !ok {
		return false
	}
	delete(c.rooms, room)
	h.dropFromRoomLocked(c.ID, room)
	return true
}

func (h *Hub) InRoom(c *Conn, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

// Occupants returns the number of local connections in room.
func (h *Hub) Occupants(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) Broadcast(_ context.Context, room, except string, frame []byte) error {
	h.Deliver(room, except, frame)
	return nil
}

// Deliver enqueues frame on every local connection in room. The write lock is
// held for the whole fan-out so all receivers see room events in the same
// order. A connection whose queue is full is closed and dropped.
func (h *Hub) Deliver(room, except string, frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, c := range h.rooms[room] {
		if id == except {
			continue
		}
		if !c.enqueue(frame) {
			h.evictLocked(c)
		}
	}
	h.metrics.Broadcast()
}

// SendTo enqueues frame on c alone.
func (h *Hub) SendTo(c *Conn, frame []byte) {
	if c.enqueue(frame) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.evictLocked(c)
}

func (h *Hub) evictLocked(c *Conn) {
	select {
	case <-c.done:
	default:
		h.logger.Warn("Dropping slow consumer", "conn_id", c.ID, "user_id", c.Identity.ID)
		h.metrics.SlowConsumer()
	}
	c.Close()
	h.removeLocked(c)
}

func (h *Hub) joinLocked(c *Conn, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Conn)
		h.rooms[room] = members
	}
	members[c.ID] = c
	c.rooms[room] = struct{}{}
}

func (h *Hub) removeLocked(c *Conn) {
	for room := range c.rooms {
		h.dropFromRoomLocked(c.ID, room)
	}
	c.rooms = make(map[string]struct{})
	delete(h.conns, c.ID)
}

func (h *Hub) dropFromRoomLocked(connID, room string) {
	members := h.rooms[room]
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}
