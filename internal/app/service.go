package app

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"reviewdash/api/internal/logging"
	"reviewdash/api/internal/merge"
	"reviewdash/api/internal/metrics"
	"reviewdash/api/internal/search"
	"reviewdash/api/internal/store"
	"reviewdash/api/internal/syncer"
)

type mergeSource interface {
	GetMergedData() *merge.Result
	Rows() ([]merge.TaggedRow, []string, error)
}

type syncRunner interface {
	Sync(ctx context.Context, trigger string) (syncer.Report, error)
	Status() syncer.Status
}

type historyStore interface {
	ListSyncRuns(ctx context.Context, limit int) ([]store.SyncRun, error)
}

type reviewSearcher interface {
	Search(q search.Query) search.Response
	Reindex(headers []string, rows []merge.TaggedRow)
}

// Pinger is a backend the readiness check pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	CacheTTL time.Duration
	Columns  metrics.Columns

	// Optional; nil disables the matching endpoint or check.
	History historyStore
	Search  reviewSearcher
	Checks  map[string]Pinger

	Logger *zap.Logger
}

// Service glues the merge cache, the sync orchestrator and the optional
// backends together for the HTTP layer.
type Service struct {
	merged  mergeSource
	syncer  syncRunner
	opts    Options
	logger  *zap.Logger
	metrics metricsCache
}

type metricsCache struct {
	mu      sync.Mutex
	etag    string
	summary metrics.Summary
}

func NewService(merged mergeSource, runner syncRunner, opts Options) *Service {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = merge.DefaultTTL
	}
	if opts.Columns == (metrics.Columns{}) {
		opts.Columns = metrics.DefaultColumns()
	}
	return &Service{
		merged: merged,
		syncer: runner,
		opts:   opts,
		logger: logging.OrNop(opts.Logger),
	}
}

func (s *Service) CacheTTL() time.Duration {
	return s.opts.CacheTTL
}

// Ready pings every configured backend and returns a result per backend.
func (s *Service) Ready(ctx context.Context) (bool, map[string]any) {
	ok := true
	checks := map[string]any{}
	names := make([]string, 0, len(s.opts.Checks))
	for name := range s.opts.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.opts.Checks[name].Ping(ctx); err != nil {
			ok = false
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}
	return ok, checks
}

// Sync runs a sync and turns its failure modes into domain errors.
func (s *Service) Sync(ctx context.Context, trigger string) (syncer.Report, error) {
	report, err := s.syncer.Sync(ctx, trigger)
	if err == nil {
		return report, nil
	}
	if errors.Is(err, syncer.ErrSyncInProgress) {
		return report, domainError(http.StatusConflict, "SYNC_IN_PROGRESS", "A sync is already running", nil)
	}
	var upstream *syncer.UpstreamStatusError
	if errors.As(err, &upstream) {
		return report, domainError(http.StatusBadGateway, "UPSTREAM_ERROR", err.Error(), map[string]any{
			"runId":      report.RunID,
			"httpStatus": upstream.StatusCode,
		})
	}
	return report, domainError(http.StatusInternalServerError, "SYNC_FAILED", err.Error(), map[string]any{
		"runId": report.RunID,
	})
}

func (s *Service) SyncStatus() syncer.Status {
	return s.syncer.Status()
}

func (s *Service) SyncHistory(ctx context.Context, limit int) ([]store.SyncRun, error) {
	if s.opts.History == nil {
		return nil, domainError(http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "Sync history is not configured", nil)
	}
	return s.opts.History.ListSyncRuns(ctx, limit)
}

func (s *Service) SheetData() *merge.Result {
	return s.merged.GetMergedData()
}

// Metrics summarises the merged data. The summary is reused while the merged
// result keeps the same etag.
func (s *Service) Metrics() (metrics.Summary, *merge.Result, error) {
	result := s.merged.GetMergedData()

	s.metrics.mu.Lock()
	defer s.metrics.mu.Unlock()
	if result.ETag != "" && result.ETag == s.metrics.etag {
		return s.metrics.summary, result, nil
	}
	summary, err := metrics.Compute(result.CSV, s.opts.Columns)
	if err != nil {
		return metrics.Summary{}, result, err
	}
	s.metrics.etag = result.ETag
	s.metrics.summary = summary
	return summary, result, nil
}

func (s *Service) Search(q search.Query) (search.Response, error) {
	if s.opts.Search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	return s.opts.Search.Search(q), nil
}

// Reindex loads the merged rows into the search index.
func (s *Service) Reindex() {
	if s.opts.Search == nil {
		return
	}
	rows, headers, err := s.merged.Rows()
	if err != nil {
		s.logger.Warn("reindex skipped, merged rows unavailable", zap.Error(err))
		return
	}
	s.opts.Search.Reindex(headers, rows)
}
