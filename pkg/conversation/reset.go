package conversation

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"

	"github.com/alexdong/quinn/pkg/store"
)

// ResetAll deletes the database files and starts over with an empty schema
// and the built-in users
func (m *Manager) ResetAll(ctx context.Context) error {
	m.mu.Lock()
	cfg := m.store.Config()
	if err := m.store.Close(); err != nil {
		m.mu.Unlock()
		return errors.Wrap(err, "close database")
	}

	for _, path := range []string{cfg.Path, cfg.Path + "-wal", cfg.Path + "-shm"} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			m.mu.Unlock()
			return errors.Wrapf(err, "remove %s", path)
		}
	}

	s, err := store.Open(cfg)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.store = s
	m.mu.Unlock()

	m.logger.Warn().Str("path", cfg.Path).Msg("All conversations deleted")
	return m.Setup(ctx)
}
