package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/alexdong/quinn/pkg/models"
)

const messageColumns = "id, conversation_id, user_content, assistant_content, system_prompt, metadata, created_at, last_updated_at"

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		m                  models.Message
		metadata           sql.NullString
		createdAt, updated int64
	)
	err := row.Scan(&m.ID, &m.ConversationID, &m.UserContent, &m.AssistantContent, &m.SystemPrompt, &metadata, &createdAt, &updated)
	if err != nil {
		return nil, err
	}
	if metadata.Valid && metadata.String != "" && metadata.String != "null" {
		m.Metadata = &models.MessageMetrics{}
		if err := unmarshalJSON(metadata, m.Metadata); err != nil {
			return nil, errors.Wrap(err, "decode message metadata")
		}
	}
	m.CreatedAt = fromUnix(createdAt)
	m.LastUpdatedAt = fromUnix(updated)
	return &m, nil
}

func encodeMetadata(meta *models.MessageMetrics) (sql.NullString, error) {
	if meta == nil {
		return sql.NullString{}, nil
	}
	data, err := marshalJSON(meta)
	if err != nil {
		return sql.NullString{}, errors.Wrap(err, "encode message metadata")
	}
	return sql.NullString{String: data, Valid: true}, nil
}

// CreateMessage inserts a message owned by userID
func (s *Store) CreateMessage(ctx context.Context, m *models.Message, userID string) (err error) {
	ctx, span := s.startSpan(ctx, "store.messages.create", "message", m.ID)
	defer func() { finish(span, err) }()

	metadata, err := encodeMetadata(m.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, user_id, user_content, assistant_content, system_prompt, metadata, created_at, last_updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, userID, m.UserContent, m.AssistantContent, m.SystemPrompt, metadata,
		unixTime(m.CreatedAt), unixTime(m.LastUpdatedAt),
	)
	if err != nil {
		return errors.Wrapf(err, "create message %s", m.ID)
	}
	return nil
}

// GetMessage returns the message with id
func (s *Store) GetMessage(ctx context.Context, id string) (m *models.Message, err error) {
	ctx, span := s.startSpan(ctx, "store.messages.get", "message", id)
	defer func() { finish(span, err) }()

	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	m, err = scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "message %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get message %s", id)
	}
	return m, nil
}

// MessagesByConversation returns a conversation's messages in the order they were created
func (s *Store) MessagesByConversation(ctx context.Context, conversationID string) (msgs []models.Message, err error) {
	ctx, span := s.startSpan(ctx, "store.messages.by_conversation", "conversation", conversationID)
	defer func() { finish(span, err) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, rowid ASC`,
		conversationID,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "list messages for %s", conversationID)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return msgs, nil
}

// UpdateMessage writes the content fields and bumps LastUpdatedAt
func (s *Store) UpdateMessage(ctx context.Context, m *models.Message) (err error) {
	ctx, span := s.startSpan(ctx, "store.messages.update", "message", m.ID)
	defer func() { finish(span, err) }()

	metadata, err := encodeMetadata(m.Metadata)
	if err != nil {
		return err
	}

	m.LastUpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET user_content = ?, assistant_content = ?, system_prompt = ?, metadata = ?, last_updated_at = ? WHERE id = ?`,
		m.UserContent, m.AssistantContent, m.SystemPrompt, metadata, m.LastUpdatedAt.Unix(), m.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "update message %s", m.ID)
	}
	return checkAffected(res, "message", m.ID)
}

// DeleteMessage removes a message
func (s *Store) DeleteMessage(ctx context.Context, id string) (err error) {
	ctx, span := s.startSpan(ctx, "store.messages.delete", "message", id)
	defer func() { finish(span, err) }()

	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "delete message %s", id)
	}
	return checkAffected(res, "message", id)
}
