package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"reviewdash/api/internal/app"
	"reviewdash/api/internal/config"
	"reviewdash/api/internal/email"
	"reviewdash/api/internal/fetch"
	"reviewdash/api/internal/lock"
	"reviewdash/api/internal/merge"
	"reviewdash/api/internal/metrics"
	"reviewdash/api/internal/search"
	"reviewdash/api/internal/snapshot"
	"reviewdash/api/internal/store"
	"reviewdash/api/internal/syncer"
)

// components is everything a command needs, built from one Config.
type components struct {
	files   *store.FileStore
	merged  *merge.Service
	syncer  *syncer.Orchestrator
	service *app.Service

	// inlineReindex makes the post-sync reindex finish before Sync returns.
	inlineReindex bool
	closers       []func()
}

// Close waits for pending sync alerts, then releases backends in reverse
// order of creation.
func (c *components) Close() {
	if c.syncer != nil {
		c.syncer.WaitAlerts()
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*components, error) {
	c := &components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	layout := store.Layout{
		CurrentRaw:    cfg.CurrentRawFile,
		CurrentParsed: cfg.CurrentParsedFile,
		Archive1:      cfg.ArchiveFile(1),
		Archive2:      cfg.ArchiveFile(2),
	}
	c.files = store.NewFileStore(cfg.DataDir, layout)

	archiveKeys := []store.Key{store.KeyArchive1, store.KeyArchive2}
	var archives []merge.Source
	for i := range cfg.Archives {
		archives = append(archives, merge.Source{Key: archiveKeys[i], Label: cfg.ArchiveLabel(i + 1)})
	}
	c.merged = merge.NewService(c.files, merge.Options{
		TTL:      cfg.MergeCacheTTL,
		Archives: archives,
		Logger:   logger,
	})

	checks := map[string]app.Pinger{}
	syncOpts := syncer.Options{
		URL:      cfg.SheetCSVURL,
		Timeout:  cfg.FetchTimeout,
		Attempts: cfg.FetchAttempts,
		LockTTL:  cfg.SyncLockTTL,
		Logger:   logger.Named("sync"),
	}
	appOpts := app.Options{
		CacheTTL: cfg.MergeCacheTTL,
		Columns: metrics.Columns{
			Agent:  cfg.AgentColumn,
			Rating: cfg.RatingColumn,
			Date:   cfg.DateColumn,
		},
		Checks: checks,
		Logger: logger.Named("http"),
	}

	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		c.closers = append(c.closers, func() { _ = db.Close() })
		if err := store.ApplyMigrations(ctx, db, store.Migrations()); err != nil {
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
		history := store.NewPostgresStore(db)
		syncOpts.History = history
		appOpts.History = history
		checks["database"] = history
		logger.Info("sync history enabled")
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		locker, err := lock.NewRedisLocker(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		c.closers = append(c.closers, func() { _ = locker.Close() })
		syncOpts.Lock = locker
		checks["redis"] = locker
		logger.Info("cross-process sync lock enabled")
	}

	if strings.TrimSpace(cfg.S3Endpoint) != "" {
		snapshots, err := snapshot.New(snapshot.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Prefix:    cfg.S3Prefix,
			UseTLS:    cfg.S3UseTLS,
		})
		if err != nil {
			return nil, err
		}
		bucketCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := snapshots.EnsureBucket(bucketCtx); err != nil {
			logger.Warn("snapshot bucket not ready, uploads may fail", zap.Error(err))
		}
		cancel()
		syncOpts.Snapshots = snapshots
		logger.Info("raw snapshots enabled", zap.String("bucket", cfg.S3Bucket))
	}

	alerts := email.NewService(email.Config{
		Host:       cfg.SMTPHost,
		Port:       cfg.SMTPPort,
		Username:   cfg.SMTPUsername,
		Password:   cfg.SMTPPassword,
		From:       cfg.SMTPFrom,
		FromName:   cfg.SMTPFromName,
		Recipients: cfg.AlertEmails,
	})
	if alerts.IsConfigured() {
		syncOpts.Notifier = alerts
		logger.Info("sync failure alerts enabled", zap.Int("recipients", len(cfg.AlertEmails)))
	}

	var primary search.Backend
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger.Named("search"))
		c.closers = append(c.closers, meili.Close)
		primary = meili
	}
	appOpts.Search = search.NewService(primary, logger.Named("search"))

	syncOpts.OnSynced = func(syncer.Report) {
		if c.inlineReindex {
			c.service.Reindex()
			return
		}
		go c.service.Reindex()
	}
	fetcher := fetch.New(
		fetch.WithClient(&http.Client{}),
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithBackoff(cfg.FetchBackoff),
		fetch.WithLogger(logger.Named("fetch")),
	)
	c.syncer = syncer.New(fetcher, c.files, syncOpts)
	c.service = app.NewService(c.merged, c.syncer, appOpts)

	ok = true
	return c, nil
}

// Compile-time checks for the optional backends.
var (
	_ syncer.History        = (*store.PostgresStore)(nil)
	_ syncer.Locker         = (*lock.RedisLocker)(nil)
	_ syncer.SnapshotPutter = (*snapshot.Store)(nil)
	_ syncer.Notifier       = (*email.Service)(nil)
	_ app.Pinger            = (*store.PostgresStore)(nil)
	_ app.Pinger            = (*lock.RedisLocker)(nil)
)
