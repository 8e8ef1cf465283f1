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
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/memories/backend/models"
)

func TestHub_SlowConsumerIsDroppedAlone(t *testing.T) {
	req := require.New(t)
	hub := NewHub(logs.GetLoggerFromLevel(slog.LevelDebug), nil)
	slow := NewConn(models.Identity{ID: "slow"}, nil, 1)
	fast := NewConn(models.Identity{ID: "fast"}, nil, 16)
	hub.Register(slow, []string{"g"})
	hub.Register(fast, []string{"g"})

	for i := 0; i < 5; i++ {
		hub.Deliver(GroupRoom("g"), "", []byte{byte('a' + i)})
	}

	select {
	case <-slow.Done():
	default:
		t.Fatal("slow consumer still open")
	}
	req.False(hub.InRoom(slow, GroupRoom("g")))
	req.Equal(1, hub.Occupants(GroupRoom("g")))

	req.Len(fast.Frames(), 5)
	for i := 0; i < 5; i++ {
		req.Equal([]byte{byte('a' + i)}, <-fast.Frames())
	}
}

func TestHub_DeliverSkipsExcept(t *testing.T) {
	req := require.New(t)
	hub := NewHub(logs.GetLoggerFromLevel(slog.LevelDebug), nil)
	a := NewConn(models.Identity{ID: "a"}, nil, 4)
	b := NewConn(models.Identity{ID: "b"}, nil, 4)
	hub.Register(a, []string{"g"})
	hub.Register(b, []string{"g"})

	hub.Deliver(GroupRoom("g"), a.ID, []byte("x"))
	req.Len(a.Frames(), 0)
	req.Len(b.Frames(), 1)
}

func TestHub_JoinAfterUnregisterIsIgnored(t *testing.T) {
	hub := NewHub(logs.GetLoggerFromLevel(slog.LevelDebug), nil)
	c := NewConn(models.Identity{ID: "a"}, nil, 4)
	hub.Register(c, nil)
	hub.Unregister(c)
	hub.Join(c, GroupRoom("g"))
	require.Equal(t, 0, hub.Occupants(GroupRoom("g")))
}
