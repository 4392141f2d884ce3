package search

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// Memory is an in-process index used when Meilisearch is not configured or
// unhealthy. Every whitespace-separated term must appear in a record's text,
// case-insensitively. Hits keep index order.
type Memory struct {
	mu      sync.RWMutex
	records []ReviewRecord
	lower   []string
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Healthy() bool {
	return true
}

func (m *Memory) Replace(records []ReviewRecord) error {
	lower := make([]string, len(records))
	for i, r := range records {
		lower[i] = strings.ToLower(r.Text)
	}
	m.mu.Lock()
	m.records = records
	m.lower = lower
	m.mu.Unlock()
	return nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *Memory) Search(q Query) ([]Result, int, error) {
	terms := strings.Fields(strings.ToLower(q.Text))
	if len(terms) == 0 {
		return nil, 0, nil
	}
	limit := normalizeLimit(q.Limit)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	source := SourceKey(q.Source)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []Result
	total := 0
	for i, record := range m.records {
		if source != "" && record.SourceKey != source {
			continue
		}
		if !containsAll(m.lower[i], terms) {
			continue
		}
		total++
		if total <= offset || len(results) >= limit {
			continue
		}
		results = append(results, Result{
			ID:       record.ID,
			Source:   record.Source,
			Position: record.Position,
			Fields:   record.Fields,
			Snippet:  snippet(record.Text, m.lower[i], terms[0]),
		})
	}
	return results, total, nil
}

func containsAll(text string, terms []string) bool {
	for _, term := range terms {
		if !strings.Contains(text, term) {
			return false
		}
	}
	return true
}

const snippetRadius = 40

// snippet cuts the text around the first match and marks it the way
// Meilisearch highlights do.
func snippet(text, lower, term string) string {
	at := strings.Index(lower, term)
	if at < 0 || len(lower) != len(text) {
		return text
	}
	start := max(0, at-snippetRadius)
	end := min(len(text), at+len(term)+snippetRadius)
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}
	var b strings.Builder
	if start > 0 {
		b.WriteString("…")
	}
	b.WriteString(text[start:at])
	b.WriteString("<mark>")
	b.WriteString(text[at : at+len(term)])
	b.WriteString("</mark>")
	b.WriteString(text[at+len(term) : end])
	if end < len(text) {
		b.WriteString("…")
	}
	return b.String()
}
