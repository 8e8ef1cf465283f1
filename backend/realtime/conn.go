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
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/efchatnet/memories/backend/models"
)

// Conn is one authenticated websocket connection. An identity may hold
// several at once. Room membership is owned by the Hub.
type Conn struct {
	ID       string
	Identity models.Identity

	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	rooms map[string]struct{} // guarded by Hub.mu
}

// NewConn wraps ws. ws may be nil for connections that are only read through
// Frames, as in tests.
func NewConn(identity models.Identity, ws *websocket.Conn, sendBuffer int) *Conn {
	return &Conn{
		ID:       uuid.NewString(),
		Identity: identity,
		ws:       ws,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		rooms:    make(map[string]struct{}),
	}
}

// Frames exposes the outbound queue.
func (c *Conn) Frames() <-chan []byte {
	return c.send
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// enqueue never blocks. It reports false when the connection is closed or its
// queue is full.
func (c *Conn) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close signals the write pump to stop. The send channel is never closed so
// late enqueues stay safe.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
