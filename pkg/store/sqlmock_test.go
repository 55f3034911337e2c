package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexdong/quinn/pkg/models"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, zerolog.Nop()), mock
}

func TestCreateUser_ExecError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO users").
		WillReturnError(errors.New("disk I/O error"))

	err := s.CreateUser(context.Background(), models.NewUser("Ada", "ada@example.com"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUser_NoRows(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM users WHERE id = ?").
		WithArgs("u1").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetUser(context.Background(), "u1")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUser_BadJSON(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"id", "name", "email_addresses", "settings", "created_at", "updated_at"}).
		AddRow("u1", "Ada", "not json", "{}", 1735689600, 1735689600)
	mock.ExpectQuery("SELECT (.+) FROM users").WillReturnRows(rows)

	_, err := s.GetUser(context.Background(), "u1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "decode email_addresses")
}

func TestUpdateConversation_RowsAffectedZero(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("UPDATE conversations SET").
		WithArgs("t", models.StatusActive, 0.5, 2, "null", sqlmock.AnyArg(), "c1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateConversation(context.Background(), &models.Conversation{
		ID: "c1", Title: "t", Status: models.StatusActive, TotalCost: 0.5, MessageCount: 2,
	})
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessagesByConversation_QueryError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM messages WHERE conversation_id = ?").
		WithArgs("c1").
		WillReturnError(errors.New("database is locked"))

	_, err := s.MessagesByConversation(context.Background(), "c1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list messages for c1")
	assert.Contains(t, err.Error(), "database is locked")
}

func TestMessagesByConversation_RowError(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"id", "conversation_id", "user_content", "assistant_content", "system_prompt", "metadata", "created_at", "last_updated_at"}).
		AddRow("m1", "c1", "hi", "hello", "hi", nil, 1735689600, 1735689600).
		AddRow("m2", "c1", "again", "", "", nil, 1735689601, 1735689601).
		RowError(1, errors.New("corrupt page"))
	mock.ExpectQuery("SELECT (.+) FROM messages").WillReturnRows(rows)

	_, err := s.MessagesByConversation(context.Background(), "c1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt page")
}

func TestCreateEmail_ExecError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO emails").
		WillReturnError(errors.New("UNIQUE constraint failed: emails.id"))

	err := s.CreateEmail(context.Background(), &models.EmailMessage{ID: "<dup@example.com>", Direction: models.DirectionInbound})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create email <dup@example.com>")
}
