package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/alexdong/quinn/pkg/models"
)

const userColumns = "id, name, email_addresses, settings, created_at, updated_at"

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u                  models.User
		name               sql.NullString
		emails, settings   sql.NullString
		createdAt, updated int64
	)
	if err := row.Scan(&u.ID, &name, &emails, &settings, &createdAt, &updated); err != nil {
		return nil, err
	}
	u.Name = name.String
	if err := unmarshalJSON(emails, &u.EmailAddresses); err != nil {
		return nil, errors.Wrap(err, "decode email_addresses")
	}
	if err := unmarshalJSON(settings, &u.Settings); err != nil {
		return nil, errors.Wrap(err, "decode settings")
	}
	u.CreatedAt = fromUnix(createdAt)
	u.UpdatedAt = fromUnix(updated)
	return &u, nil
}

// CreateUser inserts a user
func (s *Store) CreateUser(ctx context.Context, u *models.User) (err error) {
	ctx, span := s.startSpan(ctx, "store.users.create", "user", u.ID)
	defer func() { finish(span, err) }()

	emails, err := marshalJSON(u.EmailAddresses)
	if err != nil {
		return errors.Wrap(err, "encode email_addresses")
	}
	settings, err := marshalJSON(u.Settings)
	if err != nil {
		return errors.Wrap(err, "encode settings")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, emails, settings, unixTime(u.CreatedAt), unixTime(u.UpdatedAt),
	)
	if err != nil {
		return errors.Wrapf(err, "create user %s", u.ID)
	}
	return nil
}

// GetUser returns the user with id
func (s *Store) GetUser(ctx context.Context, id string) (u *models.User, err error) {
	ctx, span := s.startSpan(ctx, "store.users.get", "user", id)
	defer func() { finish(span, err) }()

	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err = scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "user %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get user %s", id)
	}
	return u, nil
}

// GetUserByEmail returns the user owning email, matched case-insensitively
// against every address of every user
func (s *Store) GetUserByEmail(ctx context.Context, email string) (u *models.User, err error) {
	ctx, span := s.startSpan(ctx, "store.users.get_by_email", "user", strings.ToLower(email))
	defer func() { finish(span, err) }()

	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	defer rows.Close()

	for rows.Next() {
		candidate, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		if candidate.HasEmail(email) {
			return candidate, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return nil, errors.Wrapf(ErrNotFound, "user with email %s", email)
}

// UpdateUser writes every field and bumps UpdatedAt
func (s *Store) UpdateUser(ctx context.Context, u *models.User) (err error) {
	ctx, span := s.startSpan(ctx, "store.users.update", "user", u.ID)
	defer func() { finish(span, err) }()

	emails, err := marshalJSON(u.EmailAddresses)
	if err != nil {
		return errors.Wrap(err, "encode email_addresses")
	}
	settings, err := marshalJSON(u.Settings)
	if err != nil {
		return errors.Wrap(err, "encode settings")
	}

	u.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET name = ?, email_addresses = ?, settings = ?, updated_at = ? WHERE id = ?`,
		u.Name, emails, settings, u.UpdatedAt.Unix(), u.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "update user %s", u.ID)
	}
	return checkAffected(res, "user", u.ID)
}

// DeleteUser removes a user and, through the foreign keys, their conversations
func (s *Store) DeleteUser(ctx context.Context, id string) (err error) {
	ctx, span := s.startSpan(ctx, "store.users.delete", "user", id)
	defer func() { finish(span, err) }()

	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "delete user %s", id)
	}
	return checkAffected(res, "user", id)
}

// AddAlternativeEmail appends email to the user's addresses. It reports false
// when the user does not exist or already has the address.
func (s *Store) AddAlternativeEmail(ctx context.Context, id, email string) (bool, error) {
	u, err := s.GetUser(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if u.HasEmail(email) {
		return false, nil
	}

	u.EmailAddresses = append(u.EmailAddresses, email)
	if err := s.UpdateUser(ctx, u); err != nil {
		return false, err
	}
	return true, nil
}
