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
	"fmt"
)

func (s *Store) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto`,

		// Profiles are provisioned by the identity provider; the bot row is
		// inserted by EnsureBotProfile.
		`CREATE TABLE IF NOT EXISTS profiles (
			id UUID PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			display_name VARCHAR(255),
			avatar_url TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS groups (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name VARCHAR(255) NOT NULL,
			created_by UUID NOT NULL REFERENCES profiles(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS group_members (
			group_id UUID NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
			user_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			role VARCHAR(20) NOT NULL DEFAULT 'member' CHECK (role IN ('admin', 'member')),
			joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (group_id, user_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_group_members_user
		ON group_members(user_id)`,

		`CREATE TABLE IF NOT EXISTS chat_messages (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			group_id UUID NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
			sender_id UUID NOT NULL REFERENCES profiles(id),
			message_type VARCHAR(10) NOT NULL DEFAULT 'text'
				CHECK (message_type IN ('text', 'image', 'voice', 'video', 'file')),
			content TEXT NOT NULL DEFAULT '',
			media_url TEXT,
			reply_to_id UUID REFERENCES chat_messages(id) ON DELETE SET NULL,
			is_edited BOOLEAN NOT NULL DEFAULT FALSE,
			is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_chat_messages_group
		ON chat_messages(group_id, created_at DESC)`,

		`CREATE TABLE IF NOT EXISTS message_read_receipts (
			message_id UUID NOT NULL REFERENCES chat_messages(id) ON DELETE CASCADE,
			user_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			read_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (message_id, user_id)
		)`,

		`CREATE TABLE IF NOT EXISTS time_capsules (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			group_id UUID NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
			created_by UUID NOT NULL REFERENCES profiles(id),
			title VARCHAR(255) NOT NULL,
			unlock_date TIMESTAMPTZ NOT NULL,
			is_locked BOOLEAN NOT NULL DEFAULT TRUE,
			unlocked_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// Sweep lookup
		`CREATE INDEX IF NOT EXISTS idx_time_capsules_locked
		ON time_capsules(unlock_date)
		WHERE is_locked = TRUE`,
	}

	for i, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}

	return nil
}
