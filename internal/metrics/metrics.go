// Package metrics derives dashboard aggregates from the merged review CSV.
package metrics

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
)

const Unassigned = "Unassigned"

// Columns names the sheet columns holding the agent, rating and date.
type Columns struct {
	Agent  string
	Rating string
	Date   string
}

func DefaultColumns() Columns {
	return Columns{Agent: "Agent", Rating: "Rating", Date: "Date"}
}

type Summary struct {
	Reviews       int          `json:"reviews"`
	Rated         int          `json:"rated"`
	AverageRating *float64     `json:"averageRating"`
	FirstDate     string       `json:"firstDate,omitempty"`
	LastDate      string       `json:"lastDate,omitempty"`
	Agents        []AgentStats `json:"agents"`
}

type AgentStats struct {
	Agent         string   `json:"agent"`
	Reviews       int      `json:"reviews"`
	Rated         int      `json:"rated"`
	AverageRating *float64 `json:"averageRating"`
	MinRating     *float64 `json:"minRating"`
	MaxRating     *float64 `json:"maxRating"`
	FirstDate     string   `json:"firstDate,omitempty"`
	LastDate      string   `json:"lastDate,omitempty"`
}

// review is one decoded row; the configured column names are remapped onto
// these tags before decoding.
type review struct {
	Agent  string `csv:"agent"`
	Rating string `csv:"rating"`
	Date   string `csv:"date"`
}

type accumulator struct {
	reviews   int
	rated     int
	sum       float64
	min, max  float64
	firstDate string
	lastDate  string
}

func (a *accumulator) add(r review) {
	a.reviews++
	if date := strings.TrimSpace(r.Date); date != "" {
		if a.firstDate == "" {
			a.firstDate = date
		}
		a.lastDate = date
	}
	rating, ok := parseRating(r.Rating)
	if !ok {
		return
	}
	if a.rated == 0 || rating < a.min {
		a.min = rating
	}
	if a.rated == 0 || rating > a.max {
		a.max = rating
	}
	a.rated++
	a.sum += rating
}

func (a *accumulator) average() *float64 {
	if a.rated == 0 {
		return nil
	}
	return ptr(round2(a.sum / float64(a.rated)))
}

// Compute aggregates the merged CSV. Blank or non-numeric ratings count as
// reviews but are left out of every rating figure.
func Compute(text string, cols Columns) (Summary, error) {
	summary := Summary{Agents: []AgentStats{}}
	if strings.TrimSpace(text) == "" {
		return summary, nil
	}

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return summary, fmt.Errorf("read header: %w", err)
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	dec, err := csvutil.NewDecoder(&fixedWidthReader{r: r, width: len(header)}, remapHeader(header, cols)...)
	if err != nil {
		return summary, fmt.Errorf("create decoder: %w", err)
	}

	var total accumulator
	byAgent := map[string]*accumulator{}
	for {
		var row review
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return summary, fmt.Errorf("decode review: %w", err)
		}
		agent := strings.TrimSpace(row.Agent)
		if agent == "" {
			agent = Unassigned
		}
		acc, ok := byAgent[agent]
		if !ok {
			acc = &accumulator{}
			byAgent[agent] = acc
		}
		acc.add(row)
		total.add(row)
	}

	summary.Reviews = total.reviews
	summary.Rated = total.rated
	summary.AverageRating = total.average()
	summary.FirstDate = total.firstDate
	summary.LastDate = total.lastDate

	for agent, acc := range byAgent {
		stats := AgentStats{
			Agent:         agent,
			Reviews:       acc.reviews,
			Rated:         acc.rated,
			AverageRating: acc.average(),
			FirstDate:     acc.firstDate,
			LastDate:      acc.lastDate,
		}
		if acc.rated > 0 {
			stats.MinRating = ptr(acc.min)
			stats.MaxRating = ptr(acc.max)
		}
		summary.Agents = append(summary.Agents, stats)
	}
	sort.Slice(summary.Agents, func(i, j int) bool {
		a, b := summary.Agents[i], summary.Agents[j]
		if a.Reviews != b.Reviews {
			return a.Reviews > b.Reviews
		}
		return a.Agent < b.Agent
	})
	return summary, nil
}

// remapHeader renames the configured columns to the review struct tags and
// gives every other column a name that cannot collide with them.
func remapHeader(header []string, cols Columns) []string {
	targets := map[string]string{}
	for name, tag := range map[string]string{cols.Agent: "agent", cols.Rating: "rating", cols.Date: "date"} {
		if name != "" {
			targets[strings.ToLower(strings.TrimSpace(name))] = tag
		}
	}

	out := make([]string, len(header))
	used := map[string]bool{}
	for i, h := range header {
		tag, ok := targets[strings.ToLower(strings.TrimSpace(h))]
		if ok && !used[tag] {
			out[i] = tag
			used[tag] = true
			continue
		}
		out[i] = "col:" + strconv.Itoa(i)
	}
	return out
}

func parseRating(value string) (float64, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	value = strings.Replace(value, ",", ".", 1)
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func ptr(f float64) *float64 {
	return &f
}

// fixedWidthReader pads or truncates records to the header width.
type fixedWidthReader struct {
	r     *csv.Reader
	width int
}

func (f *fixedWidthReader) Read() ([]string, error) {
	for {
		record, err := f.r.Read()
		if err != nil {
			return nil, err
		}
		if isBlank(record) {
			continue
		}
		if len(record) < f.width {
			record = append(record, make([]string, f.width-len(record))...)
		}
		return record[:f.width], nil
	}
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
