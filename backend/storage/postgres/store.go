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

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/efchatnet/memories/backend/models"
	"github.com/efchatnet/memories/backend/storage"
)

var _ storage.Store = (*Store)(nil)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// validID reports whether id can be bound to a UUID column. Postgres rejects
// malformed UUIDs with a type error; callers treat them as missing rows.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *Store) GetProfile(ctx context.Context, userID string) (models.Identity, error) {
	if !validID(userID) {
		return models.Identity{}, storage.ErrNotFound
	}

	var identity models.Identity
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, COALESCE(display_name, ''), avatar_url
		FROM profiles
		WHERE id = $1`, userID).Scan(
		&identity.ID, &identity.Username, &identity.DisplayName, &identity.AvatarURL)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Identity{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Identity{}, fmt.Errorf("get profile: %w", err)
	}
	return identity, nil
}

// EnsureBotProfile provisions the assistant's profile. Safe to call on every
// startup.
func (s *Store) EnsureBotProfile(ctx context.Context) error {
	bot := models.BotIdentity()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, username, display_name, avatar_url)
		VALUES ($1, $2, $3, NULL)
		ON CONFLICT (id) DO NOTHING`,
		bot.ID, bot.Username, bot.DisplayName)
	if err != nil {
		return fmt.Errorf("ensure bot profile: %w", err)
	}
	return nil
}
