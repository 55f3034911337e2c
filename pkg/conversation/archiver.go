package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/alexdong/quinn/internal/metrics"
	"github.com/alexdong/quinn/pkg/models"
)

const (
	DefaultArchiveSchedule = "@daily"
	DefaultIdleDays        = 30
)

// ArchiverConfig configures an Archiver
type ArchiverConfig struct {
	Schedule string
	IdleDays int
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

// Archiver marks idle conversations as archived on a cron schedule
type Archiver struct {
	manager  *Manager
	schedule string
	idle     time.Duration
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
	now     func() time.Time
}

// NewArchiver creates an archiver over the manager's store
func NewArchiver(manager *Manager, cfg ArchiverConfig) *Archiver {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultArchiveSchedule
	}
	if cfg.IdleDays <= 0 {
		cfg.IdleDays = DefaultIdleDays
	}
	return &Archiver{
		manager:  manager,
		schedule: cfg.Schedule,
		idle:     time.Duration(cfg.IdleDays) * 24 * time.Hour,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

// Start schedules archiving runs
func (a *Archiver) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return errors.New("archiver is already running")
	}

	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))
	if _, err := c.AddFunc(a.schedule, func() {
		if _, err := a.RunOnce(context.Background()); err != nil {
			a.logger.Error().Err(err).Msg("Failed to archive conversations")
		}
	}); err != nil {
		return errors.Wrapf(err, "invalid archive schedule %q", a.schedule)
	}

	c.Start()
	a.cron = c
	a.running = true

	a.logger.Info().
		Str("schedule", a.schedule).
		Dur("idle", a.idle).
		Msg("Conversation archiver started")
	return nil
}

// Stop stops scheduling and waits for a running pass to finish
func (a *Archiver) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return errors.New("archiver is not running")
	}
	c := a.cron
	a.running = false
	a.cron = nil
	a.mu.Unlock()

	<-c.Stop().Done()
	a.logger.Info().Msg("Conversation archiver stopped")
	return nil
}

// IsRunning reports whether the archiver is scheduled
func (a *Archiver) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// RunOnce archives every active conversation idle for longer than the
// configured period and returns how many were archived
func (a *Archiver) RunOnce(ctx context.Context) (int, error) {
	s := a.manager.Store()
	cutoff := a.now().Add(-a.idle)

	stale, err := s.ListStaleConversations(ctx, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to list idle conversations")
	}

	archived := 0
	for _, conv := range stale {
		if err := s.SetConversationStatus(ctx, conv.ID, models.StatusArchived); err != nil {
			a.logger.Warn().
				Str("conversation_id", conv.ID).
				Err(err).
				Msg("Failed to archive conversation")
			continue
		}
		archived++

		a.logger.Debug().
			Str("conversation_id", conv.ID).
			Time("updated_at", conv.UpdatedAt).
			Msg("Conversation archived")
	}

	if archived > 0 {
		a.metrics.RecordArchived(archived)
		a.logger.Info().Int("archived", archived).Msg("Archived idle conversations")
	}
	return archived, nil
}
