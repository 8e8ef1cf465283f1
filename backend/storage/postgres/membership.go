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

	"github.com/efchatnet/memories/backend/models"
)

func (s *Store) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	if !validID(groupID) || !validID(userID) {
		return false, nil
	}

	var isMember bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM group_members
			WHERE group_id = $1 AND user_id = $2
		)`,
		groupID, userID).Scan(&isMember)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return isMember, nil
}

func (s *Store) GroupsForUser(ctx context.Context, userID string) ([]string, error) {
	if !validID(userID) {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT group_id FROM group_members
		WHERE user_id = $1`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []string
	for rows.Next() {
		var groupID string
		if err := rows.Scan(&groupID); err != nil {
			return nil, err
		}
		groups = append(groups, groupID)
	}

	return groups, rows.Err()
}

// GroupMembers lists a group's members, admins first.
func (s *Store) GroupMembers(ctx context.Context, groupID string) ([]models.GroupMember, error) {
	if !validID(groupID) {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT group_id, user_id, role, joined_at FROM group_members
		WHERE group_id = $1
		ORDER BY role = 'admin' DESC, joined_at`,
		groupID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []models.GroupMember
	for rows.Next() {
		var m models.GroupMember
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}

	return members, rows.Err()
}
