package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexdong/quinn/pkg/models"
)

func TestArchiver_RunOnce(t *testing.T) {
	mgr, _, m := setupManager(t, nil)
	ctx := context.Background()
	s := mgr.Store()

	fresh := models.NewConversation(CLIUserID, "fresh")
	require.NoError(t, s.CreateConversation(ctx, fresh))

	idle := models.NewConversation(CLIUserID, "idle")
	idle.UpdatedAt = time.Now().Add(-45 * 24 * time.Hour)
	require.NoError(t, s.CreateConversation(ctx, idle))

	archiver := NewArchiver(mgr, ArchiverConfig{IdleDays: 30, Metrics: m, Logger: zerolog.Nop()})
	n, err := archiver.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConversationsArchivedTotal))

	got, err := s.GetConversation(ctx, idle.ID)
	require.NoError(t, err)
	assert.True(t, got.IsArchived())

	got, err = s.GetConversation(ctx, fresh.ID)
	require.NoError(t, err)
	assert.False(t, got.IsArchived())

	// already archived conversations are skipped
	n, err = archiver.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestArchiver_ClockAdvance(t *testing.T) {
	mgr, _, _ := setupManager(t, nil)
	ctx := context.Background()

	conv := models.NewConversation(CLIUserID, "aging")
	require.NoError(t, mgr.Store().CreateConversation(ctx, conv))

	archiver := NewArchiver(mgr, ArchiverConfig{IdleDays: 7, Logger: zerolog.Nop()})
	archiver.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }

	n, err := archiver.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestArchiver_StartStop(t *testing.T) {
	mgr, _, _ := setupManager(t, nil)
	archiver := NewArchiver(mgr, ArchiverConfig{Logger: zerolog.Nop()})

	assert.Equal(t, DefaultArchiveSchedule, archiver.schedule)
	assert.Equal(t, 30*24*time.Hour, archiver.idle)

	require.NoError(t, archiver.Start())
	assert.True(t, archiver.IsRunning())
	assert.Error(t, archiver.Start())

	require.NoError(t, archiver.Stop())
	assert.False(t, archiver.IsRunning())
	assert.Error(t, archiver.Stop())
}

func TestArchiver_InvalidSchedule(t *testing.T) {
	mgr, _, _ := setupManager(t, nil)
	archiver := NewArchiver(mgr, ArchiverConfig{Schedule: "every tuesday", Logger: zerolog.Nop()})

	err := archiver.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid archive schedule")
	assert.False(t, archiver.IsRunning())
}
