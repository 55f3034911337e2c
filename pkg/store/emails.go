package store

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"

	"github.com/alexdong/quinn/pkg/models"
)

const emailColumns = "id, conversation_id, direction, subject, from_email, to_emails, cc_emails, bcc_emails, " +
	"text_body, html_body, headers, attachments, mailbox_hash, in_reply_to, references_list, created_at"

func scanEmail(row rowScanner) (*models.EmailMessage, error) {
	var (
		e                          models.EmailMessage
		direction                  string
		to, cc, bcc                sql.NullString
		headers, attachments, refs sql.NullString
		createdAt                  int64
	)
	err := row.Scan(&e.ID, &e.ConversationID, &direction, &e.Subject, &e.FromEmail, &to, &cc, &bcc,
		&e.Text, &e.HTML, &headers, &attachments, &e.MailboxHash, &e.InReplyTo, &refs, &createdAt)
	if err != nil {
		return nil, err
	}
	e.Direction = models.EmailDirection(direction)

	for _, field := range []struct {
		data sql.NullString
		dest any
	}{
		{to, &e.To},
		{cc, &e.Cc},
		{bcc, &e.Bcc},
		{headers, &e.Headers},
		{attachments, &e.Attachments},
		{refs, &e.References},
	} {
		if err := unmarshalJSON(field.data, field.dest); err != nil {
			return nil, errors.Wrapf(err, "decode email %s", e.ID)
		}
	}
	e.CreatedAt = fromUnix(createdAt)
	return &e, nil
}

// CreateEmail stores an inbound or outbound email
func (s *Store) CreateEmail(ctx context.Context, e *models.EmailMessage) (err error) {
	ctx, span := s.startSpan(ctx, "store.emails.create", "email", e.ID)
	defer func() { finish(span, err) }()

	encoded := make([]any, 0, 6)
	for _, v := range []any{e.To, e.Cc, e.Bcc, e.Headers, e.Attachments, e.References} {
		data, err := marshalJSON(v)
		if err != nil {
			return errors.Wrapf(err, "encode email %s", e.ID)
		}
		encoded = append(encoded, data)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO emails (`+emailColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ConversationID, string(e.Direction), e.Subject, e.FromEmail,
		encoded[0], encoded[1], encoded[2],
		e.Text, e.HTML, encoded[3], encoded[4],
		e.MailboxHash, e.InReplyTo, encoded[5], unixTime(e.CreatedAt),
	)
	if err != nil {
		return errors.Wrapf(err, "create email %s", e.ID)
	}
	return nil
}

// GetEmail returns the email with id
func (s *Store) GetEmail(ctx context.Context, id string) (e *models.EmailMessage, err error) {
	ctx, span := s.startSpan(ctx, "store.emails.get", "email", id)
	defer func() { finish(span, err) }()

	row := s.db.QueryRowContext(ctx, `SELECT `+emailColumns+` FROM emails WHERE id = ?`, id)
	e, err = scanEmail(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "email %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get email %s", id)
	}
	return e, nil
}

// EmailsByConversation returns the emails of a thread, oldest first
func (s *Store) EmailsByConversation(ctx context.Context, conversationID string) (emails []*models.EmailMessage, err error) {
	ctx, span := s.startSpan(ctx, "store.emails.by_conversation", "conversation", conversationID)
	defer func() { finish(span, err) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+emailColumns+` FROM emails WHERE conversation_id = ? ORDER BY created_at ASC, rowid ASC`,
		conversationID,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "list emails for %s", conversationID)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return emails, nil
}
