package agent

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// PromptWatcher invalidates a PromptStore when prompt files change on disk
type PromptWatcher struct {
	watcher  *fsnotify.Watcher
	store    *PromptStore
	logger   zerolog.Logger
	debounce time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// NewPromptWatcher watches the store's directory, creating it if needed
func NewPromptWatcher(store *PromptStore, logger zerolog.Logger, debounce time.Duration) (*PromptWatcher, error) {
	if err := os.MkdirAll(store.Dir(), 0755); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(store.Dir()); err != nil {
		watcher.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	pw := &PromptWatcher{
		watcher:  watcher,
		store:    store,
		logger:   logger,
		debounce: debounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	go pw.run()

	return pw, nil
}

// Stop stops the watcher and waits for its goroutine to exit
func (pw *PromptWatcher) Stop() error {
	var err error
	pw.once.Do(func() {
		close(pw.stopCh)
		err = pw.watcher.Close()
		<-pw.doneCh

		pw.mu.Lock()
		if pw.timer != nil {
			pw.timer.Stop()
		}
		pw.mu.Unlock()
	})
	return err
}

func (pw *PromptWatcher) run() {
	defer close(pw.doneCh)
	for {
		select {
		case event, ok := <-pw.watcher.Events:
			if !ok {
				return
			}

			// prompts are .txt, templates are .tmpl
			name := strings.ToLower(event.Name)
			if !strings.HasSuffix(name, ".txt") && !strings.HasSuffix(name, ".tmpl") {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				pw.logger.Debug().
					Str("file", filepath.Base(event.Name)).
					Str("op", event.Op.String()).
					Msg("Prompt file change detected")

				pw.scheduleInvalidate()
			}

		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			pw.logger.Error().Err(err).Msg("Prompt watcher error")

		case <-pw.stopCh:
			return
		}
	}
}

// scheduleInvalidate debounces bursts of editor writes into one invalidation
func (pw *PromptWatcher) scheduleInvalidate() {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.timer != nil {
		pw.timer.Stop()
	}

	pw.timer = time.AfterFunc(pw.debounce, func() {
		pw.logger.Info().Str("dir", pw.store.Dir()).Msg("Reloading system prompts")
		pw.store.Invalidate()
	})
}
