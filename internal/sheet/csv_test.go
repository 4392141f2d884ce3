package sheet

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToCSVQuotesOnlyWhenNeeded(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{name: "plain", value: "great service", want: "great service"},
		{name: "comma", value: "fast, friendly", want: `"fast, friendly"`},
		{name: "quote", value: `said "wow"`, want: `"said ""wow"""`},
		{name: "newline", value: "line one\nline two", want: "\"line one\nline two\""},
		{name: "leading space kept", value: "  padded ", want: "  padded "},
		{name: "empty", value: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToCSV([]string{"Comment"}, []Row{{"Comment": tt.value}})
			assert.Equal(t, "Comment\n"+tt.want, got)
		})
	}
}

func TestToCSVQuotesHeaders(t *testing.T) {
	got := ToCSV([]string{"Agent", "Rating, 1-5", `The "why"`}, nil)
	assert.Equal(t, `Agent,"Rating, 1-5","The ""why"""`, got)
}

func TestToCSVMissingKeyIsEmpty(t *testing.T) {
	headers := []string{"Agent", "Rating", "Comment"}
	rows := []Row{
		{"Agent": "Ana", "Rating": "5"},
		{"Comment": "late", "Unknown": "ignored"},
	}

	got := ToCSV(headers, rows)

	assert.Equal(t, "Agent,Rating,Comment\nAna,5,\n,,late", got)
}

func TestParseRoundTrip(t *testing.T) {
	headers := []string{"Agent", "Rating", "Comment, long", "Date"}
	rows := []Row{
		{"Agent": "Ana", "Rating": "5", "Comment, long": "quick, polite", "Date": "2024-05-01"},
		{"Agent": "Ben", "Rating": "2", "Comment, long": `he said "later"`, "Date": "2024-05-02"},
		{"Agent": "Cy", "Rating": "4", "Comment, long": "two\nlines", "Date": ""},
	}

	gotHeaders, gotRows, err := Parse(ToCSV(headers, rows))
	require.NoError(t, err)

	assert.Equal(t, headers, gotHeaders)
	require.Len(t, gotRows, len(rows))
	for i := range rows {
		assert.Equal(t, rows[i], gotRows[i], "row %d", i)
	}
}

func TestParseRaggedAndBlankRows(t *testing.T) {
	text := "\ufeffAgent,,Agent\r\nAna,5,dup,extra\r\n,,\r\nBen\r\n"

	headers, rows, err := Parse(text)
	require.NoError(t, err)

	assert.Equal(t, []string{"Agent", "Column 2", "Agent (2)"}, headers)
	require.Len(t, rows, 2)
	assert.Equal(t, Row{"Agent": "Ana", "Column 2": "5", "Agent (2)": "dup"}, rows[0])
	assert.Equal(t, Row{"Agent": "Ben"}, rows[1])
}

func TestParseDuplicateHeadersNeverCollide(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		headers []string
	}{
		{"repeated", "A,A,A\n1,2,3\n", []string{"A", "A (2)", "A (3)"}},
		{"suffix already taken", "A,A,A (2)\n1,2,3\n", []string{"A", "A (2)", "A (2) (2)"}},
		{"suffix taken first", "A (2),A,A\n1,2,3\n", []string{"A (2)", "A", "A (3)"}},
		{"blank matches generated name", "Column 2,,x\n1,2,3\n", []string{"Column 2", "Column 2 (2)", "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			headers, rows, err := Parse(tc.text)
			require.NoError(t, err)
			assert.Equal(t, tc.headers, headers)
			require.Len(t, rows, 1)
			require.Len(t, rows[0], 3)
			for i, h := range headers {
				assert.Equal(t, strconv.Itoa(i+1), rows[0][h], "column %q", h)
			}

			again, _, err := Parse(ToCSV(headers, rows))
			require.NoError(t, err)
			assert.Equal(t, headers, again)
		})
	}
}

func TestParseEmpty(t *testing.T) {
	headers, rows, err := Parse("")
	require.NoError(t, err)
	assert.Nil(t, headers)
	assert.Nil(t, rows)
}

func TestStatsOf(t *testing.T) {
	assert.Equal(t, Stats{}, StatsOf(""))
	assert.Equal(t, Stats{Size: 3, Lines: 1}, StatsOf("a,b"))
	assert.Equal(t, Stats{Size: 8, Lines: 2}, StatsOf("a,b\n1,2\n"))

	text := strings.Repeat("x\n", 9) + "x"
	assert.Equal(t, 10, StatsOf(text).Lines)
}
