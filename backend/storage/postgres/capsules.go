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
	"time"

	"github.com/efchatnet/memories/backend/models"
	"github.com/efchatnet/memories/backend/storage"
)

func (s *Store) DueCapsules(ctx context.Context, now time.Time) ([]models.Capsule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, created_by, title, unlock_date, is_locked, unlocked_at
		FROM time_capsules
		WHERE is_locked = true AND unlock_date <= $1
		ORDER BY unlock_date`,
		now)
	if err != nil {
		return nil, fmt.Errorf("due capsules: %w", err)
	}
	defer rows.Close()

	var capsules []models.Capsule
	for rows.Next() {
		var c models.Capsule
		if err := rows.Scan(&c.ID, &c.GroupID, &c.CreatedBy, &c.Title,
			&c.UnlockDate, &c.IsLocked, &c.UnlockedAt); err != nil {
			return nil, err
		}
		capsules = append(capsules, c)
	}

	return capsules, rows.Err()
}

// UnlockCapsule only touches rows that are still locked, so concurrent or
// repeated calls transition a capsule at most once.
func (s *Store) UnlockCapsule(ctx context.Context, capsuleID string) (bool, error) {
	if !validID(capsuleID) {
		return false, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE time_capsules
		SET is_locked = false, unlocked_at = NOW()
		WHERE id = $1 AND is_locked = true`,
		capsuleID)
	if err != nil {
		return false, fmt.Errorf("unlock capsule: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) GetCapsule(ctx context.Context, capsuleID string) (models.Capsule, error) {
	if !validID(capsuleID) {
		return models.Capsule{}, storage.ErrNotFound
	}

	var c models.Capsule
	err := s.db.QueryRowContext(ctx, `
		SELECT id, group_id, created_by, title, unlock_date, is_locked, unlocked_at
		FROM time_capsules
		WHERE id = $1`, capsuleID).Scan(
		&c.ID, &c.GroupID, &c.CreatedBy, &c.Title, &c.UnlockDate, &c.IsLocked, &c.UnlockedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Capsule{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Capsule{}, fmt.Errorf("get capsule: %w", err)
	}
	return c, nil
}
