package agent

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentPromptVersion(t *testing.T) {
	now := time.Date(2025, 7, 4, 9, 5, 3, 0, time.UTC)
	assert.Equal(t, "v250704-090503", CurrentPromptVersion(now))

	// local times are normalized to UTC
	nz := time.FixedZone("NZST", 12*3600)
	assert.Equal(t, "v250704-090503", CurrentPromptVersion(now.In(nz)))
}

func TestPromptStore_LoadFallback(t *testing.T) {
	store := NewPromptStore(t.TempDir())

	prompt, err := store.Load(LatestPromptVersion)
	require.NoError(t, err)
	assert.Equal(t, FallbackSystemPrompt, prompt)

	prompt, err = store.Load("v250101-000000")
	require.NoError(t, err)
	assert.Equal(t, FallbackSystemPrompt, prompt)

	_, err = store.Load("")
	require.Error(t, err)
	assert.Equal(t, "Version cannot be empty", err.Error())
}

func TestPromptStore_LoadLatest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "system.txt"), []byte("  Ask questions only.\n"), 0644))

	prompt, err := NewPromptStore(dir).Load(LatestPromptVersion)
	require.NoError(t, err)
	assert.Equal(t, "Ask questions only.", prompt)
}

func TestPromptStore_SaveAndVersions(t *testing.T) {
	dir := t.TempDir()
	store := NewPromptStore(dir)

	require.NoError(t, store.Save("v250301-101010", "third"))
	require.NoError(t, store.Save("250101-101010", "first"))
	require.NoError(t, store.Save("v250201-101010", "second"))

	versions, err := store.Versions()
	require.NoError(t, err)
	assert.Equal(t, []string{"250101-101010", "v250201-101010", "v250301-101010"}, versions)

	prompt, err := store.Load("v250201-101010")
	require.NoError(t, err)
	assert.Equal(t, "second", prompt)

	assert.Equal(t, "v250301-101010", store.VersionLabel(LatestPromptVersion))
	assert.Equal(t, "250101-101010", store.VersionLabel("250101-101010"))
}

func TestPromptStore_SaveErrors(t *testing.T) {
	store := NewPromptStore(t.TempDir())

	tests := []struct {
		name, version, content string
	}{
		{"empty version", "", "content"},
		{"malformed version", "2025-01-01", "content"},
		{"bad month", "v251301-101010", "content"},
		{"empty content", "v250101-101010", "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.Save(tt.version, tt.content)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))
		})
	}

	assert.Error(t, NewPromptStore("").Save("v250101-101010", "content"))
}

func TestPromptStore_SaveInvalidatesCache(t *testing.T) {
	store := NewPromptStore(t.TempDir())

	first, err := store.Load("v250101-101010")
	require.NoError(t, err)
	assert.Equal(t, FallbackSystemPrompt, first)

	require.NoError(t, store.Save("v250101-101010", "updated"))
	second, err := store.Load("v250101-101010")
	require.NoError(t, err)
	assert.Equal(t, "updated", second)
}

func TestPromptStore_NoVersions(t *testing.T) {
	store := NewPromptStore(t.TempDir())
	assert.Equal(t, "", store.VersionLabel(LatestPromptVersion))

	versions, err := NewPromptStore("").Versions()
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestPromptWatcher_InvalidatesOnChange(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "prompts")
	store := NewPromptStore(dir)

	watcher, err := NewPromptWatcher(store, zerolog.Nop(), 20*time.Millisecond)
	require.NoError(t, err)
	defer watcher.Stop()

	prompt, err := store.Load(LatestPromptVersion)
	require.NoError(t, err)
	assert.Equal(t, FallbackSystemPrompt, prompt)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "system.txt"), []byte("Reloaded prompt"), 0644))

	assert.Eventually(t, func() bool {
		p, err := store.Load(LatestPromptVersion)
		return err == nil && p == "Reloaded prompt"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestPromptWatcher_StopTwice(t *testing.T) {
	store := NewPromptStore(t.TempDir())
	watcher, err := NewPromptWatcher(store, zerolog.Nop(), 0)
	require.NoError(t, err)

	assert.NoError(t, watcher.Stop())
	assert.NoError(t, watcher.Stop())
}

func TestPromptStore_LoadRejectsMalformedVersions(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "prompts")
	require.NoError(t, os.MkdirAll(dir, 0755))
	// "v250101-101010/../../x" would resolve to this file
	require.NoError(t, os.WriteFile(filepath.Join(root, "x.txt"), []byte("outside"), 0644))

	store := NewPromptStore(dir)
	for _, version := range []string{"../x", "../../etc/passwd", "v250101-101010/../../x", "2025-01-01", "LATEST"} {
		t.Run(version, func(t *testing.T) {
			prompt, err := store.Load(version)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))
			assert.Empty(t, prompt)
		})
	}
}
