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
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/memories/backend/models"
	"github.com/efchatnet/memories/backend/storage"
)

const (
	groupID   = "6f1c2b1e-3d0b-4b7e-9a55-0c3a5f0f6a10"
	userID    = "4a8e2d55-1c7f-4f3e-8d2b-7b9a1e0c5d21"
	messageID = "9b2f7c3a-5e1d-4a6b-8c0f-2d4e6a8b0c32"
	capsuleID = "1e3a5c7b-9d2f-4b6a-8e0c-3f5a7b9d1e43"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func messageRow(id string, deleted bool, content string) []driver.Value {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return []driver.Value{id, groupID, userID, "text", content, nil, nil, false, deleted, now, now}
}

var messageCols = []string{"id", "group_id", "sender_id", "message_type", "content", "media_url",
	"reply_to_id", "is_edited", "is_deleted", "created_at", "updated_at"}

func TestIsMember(t *testing.T) {
	req := require.New(t)
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(`)).
		WithArgs(groupID, userID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := store.IsMember(context.Background(), groupID, userID)
	req.NoError(err)
	req.True(ok)
	req.NoError(mock.ExpectationsWereMet())
}

func TestIsMember_MalformedIDSkipsQuery(t *testing.T) {
	req := require.New(t)
	store, mock := newMockStore(t)

	ok, err := store.IsMember(context.Background(), "not-a-uuid", userID)
	req.NoError(err)
	req.False(ok)
	req.NoError(mock.ExpectationsWereMet())
}

func TestGroupsForUser(t *testing.T) {
	req := require.New(t)
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT group_id FROM group_members`)).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"group_id"}).AddRow(groupID).AddRow(capsuleID))

	groups, err := store.GroupsForUser(context.Background(), userID)
	req.NoError(err)
	req.Equal([]string{groupID, capsuleID}, groups)
}

func TestGroupMembers(t *testing.T) {
	req := require.New(t)
	store, mock := newMockStore(t)
	joined := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT group_id, user_id, role, joined_at FROM group_members`)).
		WithArgs(groupID).
		WillReturnRows(sqlmock.NewRows([]string{"group_id", "user_id", "role", "joined_at"}).
			AddRow(groupID, userID, "admin", joined))

	members, err := store.GroupMembers(context.Background(), groupID)
	req.NoError(err)
	req.Equal([]models.GroupMember{{GroupID: groupID, UserID: userID, Role: models.RoleAdmin, JoinedAt: joined}}, members)
	req.NoError(mock.ExpectationsWereMet())
}

func TestGetMessage_NotFound(t *testing.T) {
	req := require.New(t)
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM chat_messages`)).
		WithArgs(messageID).
		WillReturnRows(sqlmock.NewRows(messageCols))

	_, err := store.GetMessage(context.Background(), messageID)
	req.ErrorIs(err, storage.ErrNotFound)

	_, err = store.GetMessage(context.Background(), "42")
	req.ErrorIs(err, storage.ErrNotFound)
	req.NoError(mock.ExpectationsWereMet())
}

func TestInsertMessage(t *testing.T) {
	req := require.New(t)
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO chat_messages`)).
		WithArgs(groupID, userID, models.MessageText, "hello", nil, nil).
		WillReturnRows(sqlmock.NewRows(messageCols).AddRow(messageRow(messageID, false, "hello")...))

	msg, err := store.InsertMessage(context.Background(), storage.NewMessage{
		GroupID:     groupID,
		SenderID:    userID,
		MessageType: models.MessageText,
		Content:     "hello",
	})
	req.NoError(err)
	req.Equal(messageID, msg.ID)
	req.Equal(models.MessageText, msg.MessageType)
	req.Nil(msg.MediaURL)
	req.NoError(mock.ExpectationsWereMet())
}

func TestSoftDeleteMessage_WritesTombstone(t *testing.T) {
	req := require.New(t)
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`SET is_deleted = true`)).
		WithArgs(models.Tombstone, messageID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req.NoError(store.SoftDeleteMessage(context.Background(), messageID))
	req.NoError(mock.ExpectationsWereMet())
}

func TestInsertReadReceipt(t *testing.T) {
	req := require.New(t)
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO message_read_receipts`)).
		WithArgs(messageID, userID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO message_read_receipts`)).
		WithArgs(messageID, userID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO message_read_receipts`)).
		WithArgs(messageID, userID).
		WillReturnError(&pq.Error{Code: "23503"})

	inserted, err := store.InsertReadReceipt(context.Background(), messageID, userID)
	req.NoError(err)
	req.True(inserted)

	inserted, err = store.InsertReadReceipt(context.Background(), messageID, userID)
	req.NoError(err)
	req.False(inserted)

	inserted, err = store.InsertReadReceipt(context.Background(), messageID, userID)
	req.NoError(err)
	req.False(inserted)
	req.NoError(mock.ExpectationsWereMet())
}

func TestHistory_AttachesReceipts(t *testing.T) {
	req := require.New(t)
	store, mock := newMockStore(t)
	before := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	readAt := time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)

	cols := append(append([]string{}, messageCols...), "username", "display_name", "avatar_url")
	row := append(messageRow(messageID, false, "hi"), "alice", "Alice", nil)
	mock.ExpectQuery(regexp.QuoteMeta(`AND cm.created_at < $2 ORDER BY cm.created_at DESC LIMIT $3`)).
		WithArgs(groupID, before, 20).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(row...))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM message_read_receipts`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"message_id", "user_id", "read_at"}).
			AddRow(messageID, capsuleID, readAt))

	views, err := store.History(context.Background(), groupID, &before, 20)
	req.NoError(err)
	req.Len(views, 1)
	req.Equal("alice", views[0].Sender.Username)
	req.Equal(userID, views[0].Sender.ID)
	req.Len(views[0].ReadBy, 1)
	req.Equal(capsuleID, views[0].ReadBy[0].UserID)
	req.NoError(mock.ExpectationsWereMet())
}

func TestUnlockCapsule_OnlyOnce(t *testing.T) {
	req := require.New(t)
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`WHERE id = $1 AND is_locked = true`)).
		WithArgs(capsuleID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`WHERE id = $1 AND is_locked = true`)).
		WithArgs(capsuleID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := store.UnlockCapsule(context.Background(), capsuleID)
	req.NoError(err)
	req.True(changed)

	changed, err = store.UnlockCapsule(context.Background(), capsuleID)
	req.NoError(err)
	req.False(changed)
	req.NoError(mock.ExpectationsWereMet())
}

func TestDueCapsules(t *testing.T) {
	req := require.New(t)
	store, mock := newMockStore(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE is_locked = true AND unlock_date <= $1`)).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "group_id", "created_by", "title",
			"unlock_date", "is_locked", "unlocked_at"}).
			AddRow(capsuleID, groupID, userID, "summer", now.Add(-time.Hour), true, nil))

	capsules, err := store.DueCapsules(context.Background(), now)
	req.NoError(err)
	req.Len(capsules, 1)
	req.True(capsules[0].IsLocked)
	req.Nil(capsules[0].UnlockedAt)
}

func TestEnsureBotProfile(t *testing.T) {
	req := require.New(t)
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (id) DO NOTHING`)).
		WithArgs(models.BotID, "gemini", "Gemini AI ✨").
		WillReturnResult(sqlmock.NewResult(0, 0))

	req.NoError(store.EnsureBotProfile(context.Background()))
	req.NoError(mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	req := require.New(t)
	store, mock := newMockStore(t)
	mock.MatchExpectationsInOrder(false)

	for i := 0; i < 10; i++ {
		mock.ExpectExec(`CREATE`).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	req.NoError(store.Migrate(context.Background()))
	req.NoError(mock.ExpectationsWereMet())
}
