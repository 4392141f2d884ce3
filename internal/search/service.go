package search

import (
	"strings"

	"go.uber.org/zap"

	"reviewdash/api/internal/logging"
	"reviewdash/api/internal/merge"
)

const (
	BackendMeili  = "meilisearch"
	BackendMemory = "memory"
)

// Service is the facade that tries Meilisearch first and falls back to the
// in-memory index.
type Service struct {
	primary Backend
	memory  *Memory
	logger  *zap.Logger
}

// NewService creates a search service. primary may be nil if Meilisearch is
// not configured.
func NewService(primary Backend, logger *zap.Logger) *Service {
	return &Service{
		primary: primary,
		memory:  NewMemory(),
		logger:  logging.OrNop(logger),
	}
}

// Search tries the primary backend if healthy, otherwise the memory index.
// A blank query matches nothing on either backend.
func (s *Service) Search(q Query) Response {
	usePrimary := s.primary != nil && s.primary.Healthy()
	if strings.TrimSpace(q.Text) == "" {
		backend := BackendMemory
		if usePrimary {
			backend = BackendMeili
		}
		return Response{Results: []Result{}, Total: 0, Query: q.Text, Backend: backend}
	}

	if usePrimary {
		results, total, err := s.primary.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: BackendMeili}
		}
		s.logger.Warn("meilisearch error, falling back to memory index", zap.Error(err))
	}

	results, total, err := s.memory.Search(q)
	if err != nil {
		s.logger.Warn("memory search", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text, Backend: BackendMemory}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: BackendMemory}
}

// Reindex replaces the indexed reviews with the given merged rows.
func (s *Service) Reindex(headers []string, rows []merge.TaggedRow) {
	records := Records(headers, rows)
	_ = s.memory.Replace(records)

	if s.primary == nil || !s.primary.Healthy() {
		s.logger.Info("reindexed reviews", zap.Int("records", len(records)), zap.String("backend", BackendMemory))
		return
	}
	if err := s.primary.Replace(records); err != nil {
		s.logger.Warn("reindex meilisearch", zap.Int("records", len(records)), zap.Error(err))
		return
	}
	s.logger.Info("reindexed reviews", zap.Int("records", len(records)), zap.String("backend", BackendMeili))
}

// Indexed reports how many reviews the fallback index holds.
func (s *Service) Indexed() int {
	return s.memory.Len()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
