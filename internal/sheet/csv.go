package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ToCSV serialises rows in header order. A field is quoted only when it
// contains a comma, a double quote or a newline; quotes inside quoted fields
// are doubled. Lines are separated by "\n" with no trailing newline.
func ToCSV(headers []string, rows []Row) string {
	var b strings.Builder
	writeLine(&b, headers, func(i int) string { return headers[i] })
	for _, row := range rows {
		b.WriteByte('\n')
		writeLine(&b, headers, func(i int) string { return row[headers[i]] })
	}
	return b.String()
}

func writeLine(b *strings.Builder, headers []string, value func(int) string) {
	for i := range headers {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(quoteField(value(i)))
	}
}

func quoteField(value string) string {
	if !strings.ContainsAny(value, ",\"\n") {
		return value
	}
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

// Parse reads CSV text into headers and rows. Ragged rows are accepted: extra
// cells are dropped and missing cells are left out of the row. Blank header
// cells become "Column N" and a repeated header gets the first free " (N)"
// suffix, so header names stay unique and no value is silently overwritten. Rows with only empty cells are skipped.
func Parse(text string) ([]string, []Row, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	record, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}
	headers := normalizeHeaders(record)

	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read csv row: %w", err)
		}
		if isBlank(record) {
			continue
		}
		row := make(Row, len(headers))
		for i, value := range record {
			if i >= len(headers) {
				break
			}
			row[headers[i]] = value
		}
		rows = append(rows, row)
	}
	return headers, rows, nil
}

func normalizeHeaders(record []string) []string {
	headers := make([]string, len(record))
	used := make(map[string]bool, len(record))
	for i, raw := range record {
		base := strings.TrimPrefix(raw, "\ufeff")
		if strings.TrimSpace(base) == "" {
			base = "Column " + strconv.Itoa(i+1)
		}
		name := base
		for n := 2; used[name]; n++ {
			name = base + " (" + strconv.Itoa(n) + ")"
		}
		used[name] = true
		headers[i] = name
	}
	return headers
}

func isBlank(record []string) bool {
	for _, value := range record {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}
