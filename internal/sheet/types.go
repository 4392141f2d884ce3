// Package sheet holds the review sheet documents persisted by the local store
// and the conversion between parsed rows and CSV text.
package sheet

import (
	"strings"
	"time"
)

// Row maps a header name to the cell value of one review row.
type Row map[string]string

// Stats describes a CSV payload.
type Stats struct {
	Size  int `json:"size"`
	Lines int `json:"lines"`
}

// RawDocument is the last fetched CSV export, replaced wholesale on every sync.
type RawDocument struct {
	CSV         string    `json:"csv"`
	LastUpdated time.Time `json:"lastUpdated"`
	Stats       Stats     `json:"stats"`
}

// ParsedDocument is the current row set used for merging.
type ParsedDocument struct {
	Headers     []string  `json:"headers"`
	Rows        []Row     `json:"rows"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Archive is a frozen, pre-parsed snapshot of older rows. Headers is optional;
// archives written before it existed only carry rows.
type Archive struct {
	Label   string   `json:"label,omitempty"`
	Headers []string `json:"headers,omitempty"`
	Rows    []Row    `json:"rows"`
}

// StatsOf returns the byte size and line count of text. A single trailing
// newline does not start a new line.
func StatsOf(text string) Stats {
	if text == "" {
		return Stats{}
	}
	trimmed := strings.TrimSuffix(text, "\n")
	return Stats{
		Size:  len(text),
		Lines: strings.Count(trimmed, "\n") + 1,
	}
}
