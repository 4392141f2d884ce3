package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mergedCSV = `Date,Agent,Rating,Comment
2023-01-03,Ana,5,Great
2023-01-09,Bo,3,"Slow, but fine"
2024-02-01,Ana,4,
2024-02-02,,2,No agent
2024-02-05,Bo,n/a,Skipped rating
2024-02-07,Ana,"4,5",Comma decimal
`

func TestComputeAggregates(t *testing.T) {
	summary, err := Compute(mergedCSV, DefaultColumns())
	require.NoError(t, err)

	assert.Equal(t, 6, summary.Reviews)
	assert.Equal(t, 5, summary.Rated)
	require.NotNil(t, summary.AverageRating)
	assert.Equal(t, 3.7, *summary.AverageRating)
	assert.Equal(t, "2023-01-03", summary.FirstDate)
	assert.Equal(t, "2024-02-07", summary.LastDate)

	require.Len(t, summary.Agents, 3)
	ana := summary.Agents[0]
	assert.Equal(t, "Ana", ana.Agent)
	assert.Equal(t, 3, ana.Reviews)
	assert.Equal(t, 4.5, *ana.AverageRating)
	assert.Equal(t, 4.0, *ana.MinRating)
	assert.Equal(t, 5.0, *ana.MaxRating)
	assert.Equal(t, "2023-01-03", ana.FirstDate)
	assert.Equal(t, "2024-02-07", ana.LastDate)

	bo := summary.Agents[1]
	assert.Equal(t, "Bo", bo.Agent)
	assert.Equal(t, 2, bo.Reviews)
	assert.Equal(t, 1, bo.Rated)
	assert.Equal(t, 3.0, *bo.AverageRating)

	assert.Equal(t, Unassigned, summary.Agents[2].Agent)
}

func TestComputeCustomColumnsCaseInsensitive(t *testing.T) {
	text := "agent name,SCORE,when,Agent\nAna,5,mon,decoy\nAna,3,tue,decoy\n"
	summary, err := Compute(text, Columns{Agent: "Agent Name", Rating: "score", Date: "When"})
	require.NoError(t, err)

	require.Len(t, summary.Agents, 1)
	assert.Equal(t, "Ana", summary.Agents[0].Agent)
	assert.Equal(t, 4.0, *summary.AverageRating)
	assert.Equal(t, "tue", summary.LastDate)
}

func TestComputeRaggedRows(t *testing.T) {
	text := "Agent,Rating,Date\nAna\nBo,4,2024-01-01,extra\n\n"
	summary, err := Compute(text, DefaultColumns())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Reviews)
	assert.Equal(t, 1, summary.Rated)
}

func TestComputeTieSortsByName(t *testing.T) {
	summary, err := Compute("Agent\nZoe\nAmy\n", DefaultColumns())
	require.NoError(t, err)

	require.Len(t, summary.Agents, 2)
	assert.Equal(t, "Amy", summary.Agents[0].Agent)
	assert.Equal(t, "Zoe", summary.Agents[1].Agent)
	assert.Nil(t, summary.AverageRating)
	assert.Nil(t, summary.Agents[0].MinRating)
}

func TestComputeEmpty(t *testing.T) {
	summary, err := Compute("", DefaultColumns())
	require.NoError(t, err)
	assert.Zero(t, summary.Reviews)
	assert.NotNil(t, summary.Agents)

	summary, err = Compute("Agent,Rating\n", DefaultColumns())
	require.NoError(t, err)
	assert.Zero(t, summary.Reviews)
}
