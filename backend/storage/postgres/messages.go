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

	"github.com/lib/pq"
	"github.com/samber/lo"

	"github.com/efchatnet/memories/backend/models"
	"github.com/efchatnet/memories/backend/storage"
)

const messageColumns = `id, group_id, sender_id, message_type, content, media_url,
	reply_to_id, is_edited, is_deleted, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (models.Message, error) {
	var msg models.Message
	err := row.Scan(&msg.ID, &msg.GroupID, &msg.SenderID, &msg.MessageType,
		&msg.Content, &msg.MediaURL, &msg.ReplyToID, &msg.IsEdited,
		&msg.IsDeleted, &msg.CreatedAt, &msg.UpdatedAt)
	return msg, err
}

func (s *Store) InsertMessage(ctx context.Context, in storage.NewMessage) (models.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO chat_messages (group_id, sender_id, message_type, content, media_url, reply_to_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+messageColumns,
		in.GroupID, in.SenderID, in.MessageType, in.Content, in.MediaURL, in.ReplyToID)

	msg, err := scanMessage(row)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

func (s *Store) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	if !validID(messageID) {
		return models.Message{}, storage.ErrNotFound
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM chat_messages
		WHERE id = $1`, messageID)

	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

func (s *Store) UpdateMessageContent(ctx context.Context, messageID, content string) (models.Message, error) {
	if !validID(messageID) {
		return models.Message{}, storage.ErrNotFound
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE chat_messages
		SET content = $1, is_edited = true, updated_at = NOW()
		WHERE id = $2
		RETURNING `+messageColumns,
		content, messageID)

	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("update message: %w", err)
	}
	return msg, nil
}

func (s *Store) SoftDeleteMessage(ctx context.Context, messageID string) error {
	if !validID(messageID) {
		return storage.ErrNotFound
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE chat_messages
		SET is_deleted = true, content = $1, updated_at = NOW()
		WHERE id = $2`,
		models.Tombstone, messageID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) RecentMessages(ctx context.Context, groupID string, limit int) ([]models.MessageView, error) {
	if !validID(groupID) {
		return nil, nil
	}
	return s.queryViews(ctx, `
		SELECT cm.id, cm.group_id, cm.sender_id, cm.message_type, cm.content, cm.media_url,
			cm.reply_to_id, cm.is_edited, cm.is_deleted, cm.created_at, cm.updated_at,
			COALESCE(p.username, ''), COALESCE(p.display_name, ''), p.avatar_url
		FROM chat_messages cm
		LEFT JOIN profiles p ON cm.sender_id = p.id
		WHERE cm.group_id = $1 AND cm.is_deleted = false
		ORDER BY cm.created_at DESC
		LIMIT $2`,
		groupID, limit)
}

func (s *Store) History(ctx context.Context, groupID string, before *time.Time, limit int) ([]models.MessageView, error) {
	if !validID(groupID) {
		return nil, nil
	}

	query := `
		SELECT cm.id, cm.group_id, cm.sender_id, cm.message_type, cm.content, cm.media_url,
			cm.reply_to_id, cm.is_edited, cm.is_deleted, cm.created_at, cm.updated_at,
			COALESCE(p.username, ''), COALESCE(p.display_name, ''), p.avatar_url
		FROM chat_messages cm
		LEFT JOIN profiles p ON cm.sender_id = p.id
		WHERE cm.group_id = $1 AND cm.is_deleted = false`
	args := []any{groupID}
	if before != nil {
		query += ` AND cm.created_at < $2`
		args = append(args, *before)
	}
	query += fmt.Sprintf(` ORDER BY cm.created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	views, err := s.queryViews(ctx, query, args...)
	if err != nil || len(views) == 0 {
		return views, err
	}

	receipts, err := s.receiptsFor(ctx, lo.Map(views, func(v models.MessageView, _ int) string {
		return v.ID
	}))
	if err != nil {
		return nil, err
	}
	for i := range views {
		views[i].ReadBy = receipts[views[i].ID]
	}
	return views, nil
}

func (s *Store) queryViews(ctx context.Context, query string, args ...any) ([]models.MessageView, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var views []models.MessageView
	for rows.Next() {
		var v models.MessageView
		if err := rows.Scan(&v.ID, &v.GroupID, &v.SenderID, &v.MessageType,
			&v.Content, &v.MediaURL, &v.ReplyToID, &v.IsEdited, &v.IsDeleted,
			&v.CreatedAt, &v.UpdatedAt,
			&v.Sender.Username, &v.Sender.DisplayName, &v.Sender.AvatarURL); err != nil {
			return nil, err
		}
		v.Sender.ID = v.SenderID
		v.ReadBy = []models.ReadReceipt{}
		views = append(views, v)
	}

	return views, rows.Err()
}

func (s *Store) receiptsFor(ctx context.Context, messageIDs []string) (map[string][]models.ReadReceipt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, user_id, read_at
		FROM message_read_receipts
		WHERE message_id = ANY($1)
		ORDER BY read_at`,
		pq.Array(messageIDs))
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}
	defer rows.Close()

	receipts := make(map[string][]models.ReadReceipt)
	for rows.Next() {
		var r models.ReadReceipt
		if err := rows.Scan(&r.MessageID, &r.UserID, &r.ReadAt); err != nil {
			return nil, err
		}
		receipts[r.MessageID] = append(receipts[r.MessageID], r)
	}

	return receipts, rows.Err()
}

func (s *Store) InsertReadReceipt(ctx context.Context, messageID, userID string) (bool, error) {
	if !validID(messageID) || !validID(userID) {
		return false, nil
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO message_read_receipts (message_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (message_id, user_id) DO NOTHING`,
		messageID, userID)
	if err != nil {
		var pqErr *pq.Error
		// foreign_key_violation: the message does not exist
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return false, nil
		}
		return false, fmt.Errorf("insert read receipt: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) UnreadCounts(ctx context.Context, userID string) ([]models.UnreadCount, error) {
	if !validID(userID) {
		return []models.UnreadCount{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT cm.group_id, COUNT(*)
		FROM chat_messages cm
		INNER JOIN group_members gm ON cm.group_id = gm.group_id
		WHERE gm.user_id = $1
			AND cm.sender_id != $1
			AND cm.is_deleted = false
			AND NOT EXISTS (
				SELECT 1 FROM message_read_receipts mrr
				WHERE mrr.message_id = cm.id AND mrr.user_id = $1
			)
		GROUP BY cm.group_id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("unread counts: %w", err)
	}
	defer rows.Close()

	counts := []models.UnreadCount{}
	for rows.Next() {
		var c models.UnreadCount
		if err := rows.Scan(&c.GroupID, &c.UnreadCount); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}

	return counts, rows.Err()
}
