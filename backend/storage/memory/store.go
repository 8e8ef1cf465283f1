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

// Package memory is an in-process Store used by tests and local runs without
// a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/efchatnet/memories/backend/models"
	"github.com/efchatnet/memories/backend/storage"
)

var _ storage.Store = (*Store)(nil)

type receiptKey struct {
	messageID string
	userID    string
}

type Store struct {
	mu       sync.RWMutex
	now      func() time.Time
	profiles map[string]models.Identity
	members  map[string]map[string]models.GroupMember // group -> user -> membership
	messages map[string]models.Message
	order    []string // message ids in insertion order
	receipts map[receiptKey]models.ReadReceipt
	capsules map[string]models.Capsule
}

func NewStore() *Store {
	return &Store{
		now:      time.Now,
		profiles: make(map[string]models.Identity),
		members:  make(map[string]map[string]models.GroupMember),
		messages: make(map[string]models.Message),
		receipts: make(map[receiptKey]models.ReadReceipt),
		capsules: make(map[string]models.Capsule),
	}
}

func (s *Store) AddProfile(identity models.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[identity.ID] = identity
}

func (s *Store) AddMember(groupID, userID string) {
	s.AddMemberWithRole(groupID, userID, models.RoleMember)
}

func (s *Store) AddMemberWithRole(groupID, userID string, role models.GroupRole) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[groupID] == nil {
		s.members[groupID] = make(map[string]models.GroupMember)
	}
	s.members[groupID][userID] = models.GroupMember{GroupID: groupID, UserID: userID, Role: role, JoinedAt: s.now()}
}

func (s *Store) RemoveMember(groupID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members[groupID], userID)
}

// AddCapsule stores c, assigning an id when empty, and returns the id.
func (s *Store) AddCapsule(c models.Capsule) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	s.capsules[c.ID] = c
	return c.ID
}

func (s *Store) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *Store) IsMember(_ context.Context, groupID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[groupID][userID]
	return ok, nil
}

func (s *Store) GroupsForUser(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var groups []string
	for groupID, users := range s.members {
		if _, ok := users[userID]; ok {
			groups = append(groups, groupID)
		}
	}
	sort.Strings(groups)
	return groups, nil
}

func (s *Store) GroupMembers(_ context.Context, groupID string) ([]models.GroupMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := lo.Values(s.members[groupID])
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members, nil
}

func (s *Store) InsertMessage(_ context.Context, in storage.NewMessage) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	msg := models.Message{
		ID:          uuid.NewString(),
		GroupID:     in.GroupID,
		SenderID:    in.SenderID,
		MessageType: in.MessageType,
		Content:     in.Content,
		MediaURL:    in.MediaURL,
		ReplyToID:   in.ReplyToID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.messages[msg.ID] = msg
	s.order = append(s.order, msg.ID)
	return msg, nil
}

func (s *Store) GetMessage(_ context.Context, messageID string) (models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return models.Message{}, storage.ErrNotFound
	}
	return msg, nil
}

func (s *Store) UpdateMessageContent(_ context.Context, messageID, content string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return models.Message{}, storage.ErrNotFound
	}
	msg.Content = content
	msg.IsEdited = true
	msg.UpdatedAt = s.now()
	s.messages[messageID] = msg
	return msg, nil
}

func (s *Store) SoftDeleteMessage(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return storage.ErrNotFound
	}
	msg.IsDeleted = true
	msg.Content = models.Tombstone
	msg.UpdatedAt = s.now()
	s.messages[messageID] = msg
	return nil
}

// visible returns the group's non-deleted messages, newest first.
func (s *Store) visible(groupID string, before *time.Time) []models.Message {
	msgs := lo.FilterMap(s.order, func(id string, _ int) (models.Message, bool) {
		msg := s.messages[id]
		if msg.GroupID != groupID || msg.IsDeleted {
			return msg, false
		}
		if before != nil && !msg.CreatedAt.Before(*before) {
			return msg, false
		}
		return msg, true
	})
	return lo.Reverse(msgs)
}

func (s *Store) view(msg models.Message) models.MessageView {
	sender, ok := s.profiles[msg.SenderID]
	if !ok {
		sender = models.Identity{ID: msg.SenderID}
	}
	return models.MessageView{Message: msg, Sender: sender, ReadBy: []models.ReadReceipt{}}
}

func (s *Store) RecentMessages(_ context.Context, groupID string, limit int) ([]models.MessageView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.visible(groupID, nil)
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return lo.Map(msgs, func(m models.Message, _ int) models.MessageView { return s.view(m) }), nil
}

func (s *Store) History(_ context.Context, groupID string, before *time.Time, limit int) ([]models.MessageView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.visible(groupID, before)
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return lo.Map(msgs, func(m models.Message, _ int) models.MessageView {
		v := s.view(m)
		for key, r := range s.receipts {
			if key.messageID == m.ID {
				v.ReadBy = append(v.ReadBy, r)
			}
		}
		sort.Slice(v.ReadBy, func(i, j int) bool { return v.ReadBy[i].ReadAt.Before(v.ReadBy[j].ReadAt) })
		return v
	}), nil
}

func (s *Store) InsertReadReceipt(_ context.Context, messageID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[messageID]; !ok {
		return false, nil
	}
	key := receiptKey{messageID: messageID, userID: userID}
	if _, ok := s.receipts[key]; ok {
		return false, nil
	}
	s.receipts[key] = models.ReadReceipt{MessageID: messageID, UserID: userID, ReadAt: s.now()}
	return true, nil
}

func (s *Store) UnreadCounts(_ context.Context, userID string) ([]models.UnreadCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, id := range s.order {
		msg := s.messages[id]
		if msg.IsDeleted || msg.SenderID == userID {
			continue
		}
		if _, member := s.members[msg.GroupID][userID]; !member {
			continue
		}
		if _, read := s.receipts[receiptKey{messageID: id, userID: userID}]; read {
			continue
		}
		counts[msg.GroupID]++
	}

	out := lo.MapToSlice(counts, func(groupID string, n int) models.UnreadCount {
		return models.UnreadCount{GroupID: groupID, UnreadCount: n}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID < out[j].GroupID })
	return out, nil
}

func (s *Store) GetProfile(_ context.Context, userID string) (models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.profiles[userID]
	if !ok {
		return models.Identity{}, storage.ErrNotFound
	}
	return identity, nil
}

func (s *Store) EnsureBotProfile(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[models.BotID]; !ok {
		s.profiles[models.BotID] = models.BotIdentity()
	}
	return nil
}

func (s *Store) DueCapsules(_ context.Context, now time.Time) ([]models.Capsule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	due := lo.Filter(lo.Values(s.capsules), func(c models.Capsule, _ int) bool {
		return c.IsLocked && !c.UnlockDate.After(now)
	})
	sort.Slice(due, func(i, j int) bool { return due[i].UnlockDate.Before(due[j].UnlockDate) })
	return due, nil
}

func (s *Store) UnlockCapsule(_ context.Context, capsuleID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.capsules[capsuleID]
	if !ok || !c.IsLocked {
		return false, nil
	}
	now := s.now()
	c.IsLocked = false
	c.UnlockedAt = &now
	s.capsules[capsuleID] = c
	return true, nil
}

func (s *Store) GetCapsule(_ context.Context, capsuleID string) (models.Capsule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.capsules[capsuleID]
	if !ok {
		return models.Capsule{}, storage.ErrNotFound
	}
	return c, nil
}
