// Package syncer pulls the published review sheet and replaces the current
// documents in the local store.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"reviewdash/api/internal/email"
	"reviewdash/api/internal/fetch"
	"reviewdash/api/internal/lock"
	"reviewdash/api/internal/logging"
	"reviewdash/api/internal/sheet"
	"reviewdash/api/internal/store"
	"reviewdash/api/internal/util"
)

const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
	TriggerCLI       = "cli"

	lockName         = "sheet-sync"
	bookkeepingLimit = 5 * time.Second
)

// ErrNoSource is returned when no sheet export URL is configured.
var ErrNoSource = errors.New("sheet CSV URL is not configured")

// UpstreamStatusError means the sheet host answered with a non-2xx status.
type UpstreamStatusError struct {
	StatusCode int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d", e.StatusCode)
}

type Fetcher interface {
	FetchWithRetry(ctx context.Context, url string, timeout time.Duration, maxAttempts int) (*fetch.Response, error)
}

type DocumentWriter interface {
	Write(key store.Key, doc any) error
}

type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (lock.ReleaseFunc, error)
}

type History interface {
	BeginSyncRun(ctx context.Context, id, trigger string, startedAt time.Time) error
	FinishSyncRun(ctx context.Context, id string, result store.SyncRunResult) error
}

type SnapshotPutter interface {
	Put(ctx context.Context, doc sheet.RawDocument) (string, error)
}

type Notifier interface {
	SendSyncFailure(failure email.SyncFailure) error
}

type Options struct {
	URL      string
	Timeout  time.Duration
	Attempts int

	// Optional collaborators; nil disables them.
	Lock      Locker
	LockTTL   time.Duration
	History   History
	Snapshots SnapshotPutter
	Notifier  Notifier
	// OnSynced runs after every successful sync. It must not block.
	OnSynced func(Report)

	Clock  func() time.Time
	Logger *zap.Logger
}

// Report is the outcome of one sync.
type Report struct {
	Success     bool        `json:"success"`
	RunID       string      `json:"runId"`
	Trigger     string      `json:"trigger"`
	StartedAt   time.Time   `json:"startedAt"`
	LastUpdated *time.Time  `json:"lastUpdated,omitempty"`
	Stats       sheet.Stats `json:"stats"`
	Rows        int         `json:"rows"`
	HTTPStatus  int         `json:"httpStatus,omitempty"`
	Error       string      `json:"error,omitempty"`
}

type Status struct {
	State      State   `json:"state"`
	LastReport *Report `json:"lastReport,omitempty"`
}

type Orchestrator struct {
	fetcher Fetcher
	docs    DocumentWriter
	opts    Options
	guard   *Guard
	now     func() time.Time
	logger  *zap.Logger

	mu   sync.RWMutex
	last *Report

	alerts sync.WaitGroup
}

func New(fetcher Fetcher, docs DocumentWriter, opts Options) *Orchestrator {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	return &Orchestrator{
		fetcher: fetcher,
		docs:    docs,
		opts:    opts,
		guard:   NewGuard(),
		now:     now,
		logger:  logging.OrNop(opts.Logger),
	}
}

func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	status := Status{State: o.guard.State()}
	if o.last != nil {
		report := *o.last
		status.LastReport = &report
	}
	return status
}

// WaitAlerts blocks until every failure alert started by Sync has been sent
// or has failed. Short-lived callers must call it before exiting.
func (o *Orchestrator) WaitAlerts() {
	o.alerts.Wait()
}

// Sync fetches the sheet export and replaces the current raw and parsed
// documents. Archives are never touched. A failed sync leaves the previous
// documents in place unless the failure happened after the raw write.
func (o *Orchestrator) Sync(ctx context.Context, trigger string) (Report, error) {
	if !o.guard.TryAcquire() {
		return Report{}, ErrSyncInProgress
	}

	if o.opts.Lock != nil {
		release, err := o.opts.Lock.Acquire(ctx, lockName, o.opts.LockTTL)
		if err != nil {
			o.guard.Abandon()
			if errors.Is(err, lock.ErrLockHeld) {
				return Report{}, ErrSyncInProgress
			}
			return Report{}, fmt.Errorf("acquire sync lock: %w", err)
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingLimit)
			defer cancel()
			if err := release(releaseCtx); err != nil {
				o.logger.Warn("release sync lock", zap.Error(err))
			}
		}()
	}

	report := Report{
		RunID:     util.NewID("run"),
		Trigger:   trigger,
		StartedAt: o.now().UTC(),
	}
	logger := o.logger.With(zap.String("runId", report.RunID), zap.String("trigger", trigger))
	logger.Info("sync started")
	o.beginHistory(ctx, logger, report)

	err := o.run(ctx, logger, &report)
	if err != nil {
		report.Error = err.Error()
		logger.Error("sync failed", zap.Error(err))
		o.notify(logger, report)
	} else {
		report.Success = true
		logger.Info("sync complete",
			zap.Int("bytes", report.Stats.Size),
			zap.Int("lines", report.Stats.Lines),
			zap.Int("rows", report.Rows),
		)
	}
	o.finishHistory(ctx, logger, report)

	o.mu.Lock()
	last := report
	o.last = &last
	o.mu.Unlock()
	o.guard.Release(err)

	if err == nil && o.opts.OnSynced != nil {
		o.opts.OnSynced(report)
	}
	return report, err
}

func (o *Orchestrator) run(ctx context.Context, logger *zap.Logger, report *Report) error {
	if o.opts.URL == "" {
		return ErrNoSource
	}
	resp, err := o.fetcher.FetchWithRetry(ctx, o.opts.URL, o.opts.Timeout, o.opts.Attempts)
	if err != nil {
		return err
	}
	report.HTTPStatus = resp.StatusCode
	if !resp.OK() {
		return &UpstreamStatusError{StatusCode: resp.StatusCode}
	}

	text := string(resp.Body)
	fetchedAt := o.now().UTC()
	raw := sheet.RawDocument{
		CSV:         text,
		LastUpdated: fetchedAt,
		Stats:       sheet.StatsOf(text),
	}
	if err := o.docs.Write(store.KeyCurrentRaw, raw); err != nil {
		return fmt.Errorf("write raw sheet data: %w", err)
	}
	report.LastUpdated = &fetchedAt
	report.Stats = raw.Stats

	headers, rows, err := sheet.Parse(text)
	if err != nil {
		return fmt.Errorf("parse sheet data: %w", err)
	}
	parsed := sheet.ParsedDocument{
		Headers:     headers,
		Rows:        rows,
		LastUpdated: fetchedAt,
	}
	if err := o.docs.Write(store.KeyCurrentParsed, parsed); err != nil {
		return fmt.Errorf("write parsed sheet data: %w", err)
	}
	report.Rows = len(rows)

	if o.opts.Snapshots != nil {
		key, err := o.opts.Snapshots.Put(ctx, raw)
		if err != nil {
			logger.Warn("snapshot upload failed", zap.Error(err))
		} else {
			logger.Info("snapshot uploaded", zap.String("key", key))
		}
	}
	return nil
}

func (o *Orchestrator) beginHistory(ctx context.Context, logger *zap.Logger, report Report) {
	if o.opts.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingLimit)
	defer cancel()
	if err := o.opts.History.BeginSyncRun(ctx, report.RunID, report.Trigger, report.StartedAt); err != nil {
		logger.Warn("record sync start", zap.Error(err))
	}
}

func (o *Orchestrator) finishHistory(ctx context.Context, logger *zap.Logger, report Report) {
	if o.opts.History == nil {
		return
	}
	result := store.SyncRunResult{
		Status:     store.SyncRunSucceeded,
		FinishedAt: o.now().UTC(),
		HTTPStatus: report.HTTPStatus,
		Bytes:      report.Stats.Size,
		Lines:      report.Stats.Lines,
		Rows:       report.Rows,
		Error:      report.Error,
	}
	if !report.Success {
		result.Status = store.SyncRunFailed
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingLimit)
	defer cancel()
	if err := o.opts.History.FinishSyncRun(ctx, report.RunID, result); err != nil {
		logger.Warn("record sync finish", zap.Error(err))
	}
}

func (o *Orchestrator) notify(logger *zap.Logger, report Report) {
	if o.opts.Notifier == nil {
		return
	}
	failure := email.SyncFailure{
		RunID:      report.RunID,
		Trigger:    report.Trigger,
		SourceURL:  o.opts.URL,
		StartedAt:  report.StartedAt,
		HTTPStatus: report.HTTPStatus,
		Error:      report.Error,
	}
	o.alerts.Add(1)
	go func() {
		defer o.alerts.Done()
		if err := o.opts.Notifier.SendSyncFailure(failure); err != nil {
			logger.Warn("send sync failure alert", zap.Error(err))
		}
	}()
}
