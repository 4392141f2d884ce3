package search

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"reviewdash/api/internal/merge"
)

const (
	defaultLimit = 20
	maxLimit     = 200
)

// ReviewRecord is the data we index for one merged review row.
type ReviewRecord struct {
	ID        string            `json:"id"`
	Source    string            `json:"source"`
	SourceKey string            `json:"sourceKey"`
	Position  int               `json:"position"`
	Fields    map[string]string `json:"fields"`
	Text      string            `json:"text"`
}

// Result is a single search hit returned to the caller.
type Result struct {
	ID       string            `json:"id"`
	Source   string            `json:"source"`
	Position int               `json:"position"`
	Fields   map[string]string `json:"fields"`
	Snippet  string            `json:"snippet,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Source string // empty = all sources
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Backend string   `json:"backend"`
}

// Backend can execute a search and replace its whole index.
type Backend interface {
	Search(q Query) ([]Result, int, error)
	Replace(records []ReviewRecord) error
	Healthy() bool
}

// Records turns merged rows into index records. Text holds the cell values in
// header order so matches follow the sheet's column order.
func Records(headers []string, rows []merge.TaggedRow) []ReviewRecord {
	records := make([]ReviewRecord, 0, len(rows))
	for _, row := range rows {
		fields := make(map[string]string, len(row.Row))
		var text []string
		seen := make(map[string]bool, len(headers))
		for _, h := range headers {
			seen[h] = true
			if v := strings.TrimSpace(row.Row[h]); v != "" {
				fields[h] = v
				text = append(text, v)
			}
		}
		// Keys outside the header list are still searchable.
		var extra []string
		for k := range row.Row {
			if !seen[k] {
				extra = append(extra, k)
			}
		}
		sort.Strings(extra)
		for _, k := range extra {
			if v := strings.TrimSpace(row.Row[k]); v != "" {
				fields[k] = v
				text = append(text, v)
			}
		}
		records = append(records, ReviewRecord{
			ID:        RecordID(row.Source, row.Position),
			Source:    row.Source,
			SourceKey: SourceKey(row.Source),
			Position:  row.Position,
			Fields:    fields,
			Text:      strings.Join(text, " | "),
		})
	}
	return records
}

// SourceKey is the form source labels are filtered on, so a source filter
// matches regardless of case or surrounding spaces.
func SourceKey(source string) string {
	return strings.ToLower(strings.TrimSpace(source))
}

// RecordID builds an index-safe id such as "archive-2023-12".
func RecordID(source string, position int) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(source) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		slug = "source"
	}
	return slug + "-" + strconv.Itoa(position)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
