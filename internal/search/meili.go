package search

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"

	"reviewdash/api/internal/logging"
)

const idxReviews = "reviews"

// Meili implements Backend via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	logger  *zap.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the reviews index.
// An unreachable server is not an error; the health loop picks it up later.
func NewMeili(url, apiKey string, logger *zap.Logger) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		logger: logging.OrNop(logger),
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		m.logger.Warn("meilisearch unavailable", zap.String("url", url), zap.Error(err))
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxReviews,
		PrimaryKey: "id",
	}); err != nil {
		m.logger.Debug("create index (may already exist)", zap.String("index", idxReviews), zap.Error(err))
	}

	index := m.client.Index(idxReviews)
	filterable := []interface{}{"sourceKey"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn("update filterable attributes", zap.String("index", idxReviews), zap.Error(err))
	}
	searchable := []string{"text"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn("update searchable attributes", zap.String("index", idxReviews), zap.Error(err))
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Replace drops the reviews index and loads records into a fresh one.
// Meilisearch runs the enqueued tasks in order, so searches see either the
// old or the new content once the tasks finish.
func (m *Meili) Replace(records []ReviewRecord) error {
	if !m.healthy.Load() {
		return fmt.Errorf("meilisearch unhealthy")
	}
	if _, err := m.client.DeleteIndex(idxReviews); err != nil {
		return fmt.Errorf("drop index %s: %w", idxReviews, err)
	}
	m.configureIndex()
	if len(records) == 0 {
		return nil
	}
	if _, err := m.client.Index(idxReviews).AddDocuments(records, nil); err != nil {
		return fmt.Errorf("index %d reviews: %w", len(records), err)
	}
	return nil
}

func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	req := searchRequest(q)
	resp, err := m.client.Index(idxReviews).Search(q.Text, req)
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	results := make([]Result, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		results = append(results, hitToResult(hit))
	}
	return results, int(resp.EstimatedTotalHits), nil
}

func searchRequest(q Query) *meili.SearchRequest {
	req := &meili.SearchRequest{
		Limit:                 int64(normalizeLimit(q.Limit)),
		Offset:                int64(max(q.Offset, 0)),
		AttributesToHighlight: []string{"text"},
		AttributesToCrop:      []string{"text"},
		CropLength:            16,
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
	if source := SourceKey(q.Source); source != "" {
		req.Filter = "sourceKey = " + quoteFilterValue(source)
	}
	return req
}

// quoteFilterValue quotes a string for a Meilisearch filter expression.
func quoteFilterValue(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, `"`, `\"`)
	return `"` + value + `"`
}

func hitToResult(hit meili.Hit) Result {
	r := Result{
		ID:     decodeString(hit, "id"),
		Source: decodeString(hit, "source"),
	}
	if raw, ok := hit["position"]; ok {
		_ = json.Unmarshal(raw, &r.Position)
	}
	if raw, ok := hit["fields"]; ok {
		_ = json.Unmarshal(raw, &r.Fields)
	}
	r.Snippet = firstNonBlank(decodeFormattedString(hit, "text"), decodeString(hit, "text"))
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]json.RawMessage
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(formatted[key], &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
