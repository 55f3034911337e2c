package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/alexdong/quinn/pkg/models"
)

const conversationColumns = "id, user_id, title, status, total_cost, message_count, metadata, created_at, updated_at"

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var (
		c                  models.Conversation
		title, metadata    sql.NullString
		createdAt, updated int64
	)
	err := row.Scan(&c.ID, &c.UserID, &title, &c.Status, &c.TotalCost, &c.MessageCount, &metadata, &createdAt, &updated)
	if err != nil {
		return nil, err
	}
	c.Title = title.String
	if err := unmarshalJSON(metadata, &c.Metadata); err != nil {
		return nil, errors.Wrap(err, "decode conversation metadata")
	}
	c.CreatedAt = fromUnix(createdAt)
	c.UpdatedAt = fromUnix(updated)
	return &c, nil
}

func (s *Store) queryConversations(ctx context.Context, query string, args ...any) ([]*models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateConversation inserts a conversation
func (s *Store) CreateConversation(ctx context.Context, c *models.Conversation) (err error) {
	ctx, span := s.startSpan(ctx, "store.conversations.create", "conversation", c.ID)
	defer func() { finish(span, err) }()

	if c.Status == "" {
		c.Status = models.StatusActive
	}
	metadata, err := marshalJSON(c.Metadata)
	if err != nil {
		return errors.Wrap(err, "encode conversation metadata")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (`+conversationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Title, c.Status, c.TotalCost, c.MessageCount, metadata,
		unixTime(c.CreatedAt), unixTime(c.UpdatedAt),
	)
	if err != nil {
		return errors.Wrapf(err, "create conversation %s", c.ID)
	}
	return nil
}

// GetConversation returns the conversation with id, without messages
func (s *Store) GetConversation(ctx context.Context, id string) (c *models.Conversation, err error) {
	ctx, span := s.startSpan(ctx, "store.conversations.get", "conversation", id)
	defer func() { finish(span, err) }()

	row := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	c, err = scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "conversation %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get conversation %s", id)
	}
	return c, nil
}

// ConversationsByUser returns a user's conversations, most recently updated first
func (s *Store) ConversationsByUser(ctx context.Context, userID string) (convs []*models.Conversation, err error) {
	ctx, span := s.startSpan(ctx, "store.conversations.by_user", "user", userID)
	defer func() { finish(span, err) }()

	convs, err = s.queryConversations(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE user_id = ? ORDER BY updated_at DESC, rowid DESC`,
		userID,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "list conversations for %s", userID)
	}
	return convs, nil
}

// ListStaleConversations returns active conversations not updated since before
func (s *Store) ListStaleConversations(ctx context.Context, before time.Time) (convs []*models.Conversation, err error) {
	ctx, span := s.startSpan(ctx, "store.conversations.list_stale", "conversation", "*")
	defer func() { finish(span, err) }()

	convs, err = s.queryConversations(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE status = ? AND updated_at < ? ORDER BY updated_at`,
		models.StatusActive, before.Unix(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "list stale conversations")
	}
	return convs, nil
}

// UpdateConversation writes every field and bumps UpdatedAt
func (s *Store) UpdateConversation(ctx context.Context, c *models.Conversation) (err error) {
	ctx, span := s.startSpan(ctx, "store.conversations.update", "conversation", c.ID)
	defer func() { finish(span, err) }()

	metadata, err := marshalJSON(c.Metadata)
	if err != nil {
		return errors.Wrap(err, "encode conversation metadata")
	}

	c.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, status = ?, total_cost = ?, message_count = ?, metadata = ?, updated_at = ? WHERE id = ?`,
		c.Title, c.Status, c.TotalCost, c.MessageCount, metadata, c.UpdatedAt.Unix(), c.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "update conversation %s", c.ID)
	}
	return checkAffected(res, "conversation", c.ID)
}

// SetConversationStatus changes only the status, leaving updated_at alone
func (s *Store) SetConversationStatus(ctx context.Context, id, status string) (err error) {
	ctx, span := s.startSpan(ctx, "store.conversations.set_status", "conversation", id)
	defer func() { finish(span, err) }()

	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return errors.Wrapf(err, "set status of conversation %s", id)
	}
	return checkAffected(res, "conversation", id)
}

// DeleteConversation removes a conversation and its messages
func (s *Store) DeleteConversation(ctx context.Context, id string) (err error) {
	ctx, span := s.startSpan(ctx, "store.conversations.delete", "conversation", id)
	defer func() { finish(span, err) }()

	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "delete conversation %s", id)
	}
	return checkAffected(res, "conversation", id)
}
