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

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RoomEventsChannel carries every room fan-out between instances.
const RoomEventsChannel = "memories:room:events"

// Deliverer hands a relayed frame to the local connections of a room.
type Deliverer interface {
	Deliver(room, except string, frame []byte)
}

type roomEvent struct {
	Room   string          `json:"room"`
	Except string          `json:"except,omitempty"`
	Frame  json.RawMessage `json:"frame"`
}

// Relay publishes room events to Redis so that every instance, including the
// publisher, delivers them to its own connections.
type Relay struct {
	rdb       *redis.Client
	channel   string
	logger    *slog.Logger
	ready     chan struct{}
	readyOnce sync.Once
}

func NewRelay(rdb *redis.Client, logger *slog.Logger) *Relay {
	return &Relay{
		rdb:     rdb,
		channel: RoomEventsChannel,
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

func (r *Relay) Broadcast(ctx context.Context, room, except string, frame []byte) error {
	data, err := json.Marshal(roomEvent{Room: room, Except: except, Frame: frame})
	if err != nil {
		return fmt.Errorf("failed to marshal room event: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish room event: %w", err)
	}
	return nil
}

// Ready is closed once the subscription is confirmed.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

// Run subscribes and delivers relayed events until ctx is done.
func (r *Relay) Run(ctx context.Context, d Deliverer) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	r.readyOnce.Do(func() { close(r.ready) })
	r.logger.Info("Room relay subscribed", "channel", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var evt roomEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				r.logger.Warn("Skipping malformed room event", "error", err)
				continue
			}
			d.Deliver(evt.Room, evt.Except, evt.Frame)
		}
	}
}
