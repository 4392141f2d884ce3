package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"reviewdash/api/internal/config"
	"reviewdash/api/internal/email"
	"reviewdash/api/internal/sheet"
	"reviewdash/api/internal/store"
	"reviewdash/api/internal/syncer"
)

type slowNotifier struct {
	sent atomic.Int32
}

func (n *slowNotifier) SendSyncFailure(email.SyncFailure) error {
	time.Sleep(50 * time.Millisecond)
	n.sent.Add(1)
	return nil
}

func TestSyncWriteTimeout(t *testing.T) {
	cfg := config.Config{FetchAttempts: 3, FetchTimeout: 30 * time.Second, FetchBackoff: 2 * time.Second}
	// 3 x 30s + (2s + 4s + 6s) + 30s
	assert.Equal(t, 132*time.Second, syncWriteTimeout(cfg))
}

func TestBuildWithoutOptionalBackends(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{
		DataDir:           dir,
		CurrentRawFile:    "sheet-data.json",
		CurrentParsedFile: "sheet-data-parsed.json",
		Archives:          []config.ArchiveConfig{{Label: "2023", File: "historical-2023.json"}},
		FetchAttempts:     1,
		FetchTimeout:      time.Second,
		MergeCacheTTL:     10 * time.Second,
		SMTPPort:          "587",
	}

	c, err := build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	assert.True(t, c.merged.GetMergedData().Degraded())

	files := store.NewFileStore(dir, store.Layout{
		CurrentParsed: cfg.CurrentParsedFile,
		Archive1:      "historical-2023.json",
	})
	require.NoError(t, files.Write(store.KeyArchive1, sheet.Archive{Rows: []sheet.Row{{"Agent": "Old"}}}))
	require.NoError(t, files.Write(store.KeyCurrentParsed, sheet.ParsedDocument{
		Headers: []string{"Agent"},
		Rows:    []sheet.Row{{"Agent": "New"}},
	}))

	result := c.merged.GetMergedData()
	require.False(t, result.Degraded())
	assert.Equal(t, "Agent\nOld\nNew", result.CSV)
	assert.Equal(t, 1, result.Stats.Historical)
	assert.Equal(t, "2023", result.Stats.Sources[0].Label)

	ok, checks := c.service.Ready(context.Background())
	assert.True(t, ok)
	assert.Empty(t, checks)
}

func TestCloseWaitsForSyncAlerts(t *testing.T) {
	notifier := &slowNotifier{}
	files := store.NewFileStore(t.TempDir(), store.DefaultLayout())
	c := &components{
		files:  files,
		syncer: syncer.New(nil, files, syncer.Options{Notifier: notifier}),
	}

	_, err := c.syncer.Sync(context.Background(), syncer.TriggerCLI)
	require.ErrorIs(t, err, syncer.ErrNoSource)

	c.Close()
	assert.Equal(t, int32(1), notifier.sent.Load())
}
