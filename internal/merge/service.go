// Package merge combines historical archives with the current sheet data and
// caches the merged CSV for a short TTL.
package merge

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"reviewdash/api/internal/logging"
	"reviewdash/api/internal/sheet"
	"reviewdash/api/internal/store"
)

const DefaultTTL = 10 * time.Second

// DocumentReader is the read side of the local store.
type DocumentReader interface {
	Read(key store.Key, out any) error
}

// Source is one optional historical archive, merged in slice order.
type Source struct {
	Key   store.Key
	Label string
}

type Options struct {
	TTL      time.Duration
	Clock    Clock
	Archives []Source
	Logger   *zap.Logger
}

// Result is the merged payload served to the dashboard.
type Result struct {
	CSV         string     `json:"csv"`
	LastUpdated *time.Time `json:"lastUpdated"`
	Stats       Stats      `json:"stats"`
	Timestamp   time.Time  `json:"timestamp"`
	ETag        string     `json:"etag"`
	Error       string     `json:"error,omitempty"`
}

// Degraded reports whether the result was built without current data.
func (r *Result) Degraded() bool {
	return r.Error != ""
}

type Stats struct {
	Size       int           `json:"size"`
	Lines      int           `json:"lines"`
	Historical int           `json:"historical"`
	Current    int           `json:"current"`
	Total      int           `json:"total"`
	Sources    []SourceStats `json:"sources,omitempty"`
}

type SourceStats struct {
	Label  string `json:"label"`
	Rows   int    `json:"rows"`
	Status string `json:"status"`
}

// TaggedRow is a merged row with the source it came from and its position
// within that source.
type TaggedRow struct {
	Source   string
	Position int
	Row      sheet.Row
}

const CurrentLabel = "Current"

type lookupStatus string

const (
	statusFound  lookupStatus = "found"
	statusEmpty  lookupStatus = "empty"
	statusAbsent lookupStatus = "absent"
	statusBroken lookupStatus = "broken"
)

// archiveLookup is the outcome of reading one optional archive. Every status
// other than found contributes no rows.
type archiveLookup struct {
	source  Source
	status  lookupStatus
	archive sheet.Archive
	err     error
}

type snapshot struct {
	current  sheet.ParsedDocument
	raw      sheet.RawDocument
	archives []archiveLookup
}

type Service struct {
	docs     DocumentReader
	archives []Source
	cache    *resultCache
	now      Clock
	logger   *zap.Logger
}

func NewService(docs DocumentReader, opts Options) *Service {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	ttl := opts.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Service{
		docs:     docs,
		archives: opts.Archives,
		cache:    newResultCache(ttl, now),
		now:      now,
		logger:   logging.OrNop(opts.Logger).Named("merge"),
	}
}

// GetMergedData returns the cached merged result while it is fresh, otherwise
// rebuilds it from the local store. It never fails: when the current data
// cannot be read it returns an empty result with Error set, which is not cached.
func (s *Service) GetMergedData() *Result {
	if cached, ok := s.cache.get(); ok {
		return cached
	}

	snap, err := s.load()
	if err != nil {
		s.logger.Error("current sheet data unavailable, serving empty result", zap.Error(err))
		return &Result{
			Timestamp: s.now(),
			Error:     "current sheet data unavailable",
		}
	}

	rows := mergeRows(snap)
	headers := mergeHeaders(snap)
	csv := sheet.ToCSV(headers, untag(rows))

	stats := Stats{
		Size:    len(csv),
		Current: len(snap.current.Rows),
		Total:   len(rows),
	}
	for _, lookup := range snap.archives {
		n := len(lookup.archive.Rows)
		stats.Historical += n
		stats.Sources = append(stats.Sources, SourceStats{Label: lookup.source.Label, Rows: n, Status: string(lookup.status)})
	}
	stats.Sources = append(stats.Sources, SourceStats{Label: CurrentLabel, Rows: stats.Current, Status: string(statusFound)})
	stats.Lines = stats.Total + 1

	now := s.now()
	result := &Result{
		CSV:         csv,
		LastUpdated: lastUpdated(snap),
		Stats:       stats,
		Timestamp:   now,
		ETag:        fmt.Sprintf("%d-%d", now.UnixMilli(), stats.Total),
	}
	s.cache.put(result, now)

	s.logger.Debug("merged sheet data",
		zap.Int("historical", stats.Historical),
		zap.Int("current", stats.Current),
		zap.Int("total", stats.Total),
		zap.String("etag", result.ETag),
	)
	return result
}

// Rows loads and merges rows without touching the cache.
func (s *Service) Rows() ([]TaggedRow, []string, error) {
	snap, err := s.load()
	if err != nil {
		return nil, nil, err
	}
	return mergeRows(snap), mergeHeaders(snap), nil
}

func (s *Service) load() (snapshot, error) {
	var snap snapshot
	if err := s.docs.Read(store.KeyCurrentParsed, &snap.current); err != nil {
		return snapshot{}, err
	}
	if err := s.docs.Read(store.KeyCurrentRaw, &snap.raw); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("raw sheet metadata unreadable", zap.Error(err))
	}

	for _, source := range s.archives {
		lookup := s.lookupArchive(source)
		switch lookup.status {
		case statusBroken:
			s.logger.Warn("skipping unreadable archive", zap.String("archive", source.Label), zap.Error(lookup.err))
		case statusAbsent, statusEmpty:
			s.logger.Debug("skipping archive", zap.String("archive", source.Label), zap.String("status", string(lookup.status)))
		}
		snap.archives = append(snap.archives, lookup)
	}
	return snap, nil
}

func (s *Service) lookupArchive(source Source) archiveLookup {
	var archive sheet.Archive
	err := s.docs.Read(source.Key, &archive)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return archiveLookup{source: source, status: statusAbsent}
	case err != nil:
		return archiveLookup{source: source, status: statusBroken, err: err}
	case len(archive.Rows) == 0:
		return archiveLookup{source: source, status: statusEmpty}
	default:
		return archiveLookup{source: source, status: statusFound, archive: archive}
	}
}

// mergeRows concatenates archive rows in configured order followed by the
// current rows. Positions are not compared against any timestamps.
func mergeRows(snap snapshot) []TaggedRow {
	total := len(snap.current.Rows)
	for _, lookup := range snap.archives {
		total += len(lookup.archive.Rows)
	}
	rows := make([]TaggedRow, 0, total)
	for _, lookup := range snap.archives {
		for i, row := range lookup.archive.Rows {
			rows = append(rows, TaggedRow{Source: lookup.source.Label, Position: i, Row: row})
		}
	}
	for i, row := range snap.current.Rows {
		rows = append(rows, TaggedRow{Source: CurrentLabel, Position: i, Row: row})
	}
	return rows
}

// mergeHeaders keeps the current header order and appends columns that only
// exist in archives, in the order they are first seen.
func mergeHeaders(snap snapshot) []string {
	seen := make(map[string]struct{}, len(snap.current.Headers))
	headers := make([]string, 0, len(snap.current.Headers))
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		headers = append(headers, name)
	}

	for _, h := range snap.current.Headers {
		add(h)
	}
	for _, lookup := range snap.archives {
		if len(lookup.archive.Headers) > 0 {
			for _, h := range lookup.archive.Headers {
				add(h)
			}
			continue
		}
		var keys []string
		for _, row := range lookup.archive.Rows {
			for k := range row {
				if _, ok := seen[k]; !ok {
					keys = append(keys, k)
				}
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			add(k)
		}
	}
	return headers
}

func untag(rows []TaggedRow) []sheet.Row {
	out := make([]sheet.Row, len(rows))
	for i, row := range rows {
		out[i] = row.Row
	}
	return out
}

func lastUpdated(snap snapshot) *time.Time {
	switch {
	case !snap.current.LastUpdated.IsZero():
		t := snap.current.LastUpdated
		return &t
	case !snap.raw.LastUpdated.IsZero():
		t := snap.raw.LastUpdated
		return &t
	default:
		return nil
	}
}
