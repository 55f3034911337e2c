package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"

	"github.com/alexdong/quinn/internal/tracing"
)

// Supported database/sql driver names
const (
	DriverCGO    = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPureGo = "sqlite"  // modernc.org/sqlite
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("not found")

// Config holds store configuration
type Config struct {
	Driver string
	Path   string
	Logger zerolog.Logger
}

// Store persists users, conversations, messages and emails in SQLite
type Store struct {
	db     *sql.DB
	cfg    Config
	logger zerolog.Logger
}

func dsn(driver, path string) (string, error) {
	switch driver {
	case DriverCGO:
		return "file:" + path + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", nil
	case DriverPureGo:
		return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", nil
	}
	return "", errors.Newf("unsupported database driver: %s", driver)
}

// Open opens (creating if needed) the database at cfg.Path and migrates it
func Open(cfg Config) (*Store, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverCGO
	}
	if cfg.Path == "" {
		return nil, errors.New("database path is required")
	}

	source, err := dsn(cfg.Driver, cfg.Path)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, "failed to create database directory")
		}
	}

	db, err := sql.Open(cfg.Driver, source)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "failed to apply %q", pragma)
		}
	}

	s := &Store{db: db, cfg: cfg, logger: cfg.Logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}

	s.logger.Info().Str("driver", cfg.Driver).Str("path", cfg.Path).Msg("Database opened")
	return s, nil
}

// New wraps an already open database without migrating it
func New(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database handle
func (s *Store) DB() *sql.DB {
	return s.db
}

// Config returns the configuration the store was opened with
func (s *Store) Config() Config {
	return s.cfg
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT,
			email_addresses TEXT NOT NULL DEFAULT '[]',
			settings TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT,
			status TEXT NOT NULL DEFAULT 'active',
			total_cost REAL NOT NULL DEFAULT 0,
			message_count INTEGER NOT NULL DEFAULT 0,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, updated_at);
		CREATE INDEX IF NOT EXISTS idx_conversations_status ON conversations(status, updated_at);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			user_content TEXT NOT NULL,
			assistant_content TEXT NOT NULL DEFAULT '',
			system_prompt TEXT NOT NULL DEFAULT '',
			metadata TEXT,
			created_at INTEGER NOT NULL,
			last_updated_at INTEGER NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

		CREATE TABLE IF NOT EXISTS emails (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL DEFAULT '',
			direction TEXT NOT NULL,
			subject TEXT NOT NULL DEFAULT '',
			from_email TEXT NOT NULL,
			to_emails TEXT NOT NULL DEFAULT '[]',
			cc_emails TEXT NOT NULL DEFAULT '[]',
			bcc_emails TEXT NOT NULL DEFAULT '[]',
			text_body TEXT NOT NULL DEFAULT '',
			html_body TEXT NOT NULL DEFAULT '',
			headers TEXT NOT NULL DEFAULT '{}',
			attachments TEXT NOT NULL DEFAULT '[]',
			mailbox_hash TEXT NOT NULL DEFAULT '',
			in_reply_to TEXT NOT NULL DEFAULT '',
			references_list TEXT NOT NULL DEFAULT '[]',
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_emails_conversation ON emails(conversation_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// startSpan opens a store span for an operation on entity id
func (s *Store) startSpan(ctx context.Context, op, entity, id string) (context.Context, trace.Span) {
	return tracing.StartSpan(ctx, tracing.TracerStore, op, tracing.DBSpanID(entity, id),
		attribute.String("db.system", "sqlite"),
		attribute.String("db.operation", op),
	)
}

// finish ends the span, not counting a missing row as a failure
func finish(span trace.Span, err error) {
	if errors.Is(err, ErrNotFound) {
		span.SetAttributes(attribute.Bool("db.not_found", true))
		err = nil
	}
	tracing.EndSpan(span, err)
}

// checkAffected turns a zero-row write into ErrNotFound
func checkAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func unixTime(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().UTC().Unix()
	}
	return t.Unix()
}

func fromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func marshalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalJSON(data sql.NullString, v any) error {
	if !data.Valid || data.String == "" || data.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(data.String), v)
}

type rowScanner interface {
	Scan(dest ...any) error
}
