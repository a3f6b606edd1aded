package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExpander struct {
	calls  int
	result string
	err    error
}

func (f *fakeExpander) ExpandQuery(ctx context.Context, query string) (string, error) {
	f.calls++
	return f.result, f.err
}

func TestExtractPageFilter(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"104페이지 설명해줘", 104},
		{"see p. 12", 12},
		{"3 page summary", 3},
		{"page 42 please", 42},
		{"page 5000 details", 0},
		{"0페이지", 0},
		{"no numbers here", 0},
		{"", 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, extractPageFilter(tt.query))
		})
	}
}

func TestRefineQuery(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"what does error E101 mean", "E101"},
		{"compare Q170 and Q1700 modes", "Q170 Q1700"},
		{"no codes in this question", "no codes in this question"},
		{"lowercase e101 is not a code", "lowercase e101 is not a code"},
		{"Q17000 is five digits", "Q17000 is five digits"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, refineQuery(tt.query))
		})
	}
}

func TestPlannerExpansionCached(t *testing.T) {
	exp := &fakeExpander{result: "원점 복귀 OPR method"}
	p := NewPlanner(exp, 16, nil)
	ctx := context.Background()

	plan := p.Plan(ctx, "원점 복귀", nil, "")
	assert.Equal(t, "원점 복귀 OPR method", plan.ExpandedQuery)
	assert.Equal(t, 1, exp.calls)

	p.Plan(ctx, "원점 복귀", nil, "")
	assert.Equal(t, 1, exp.calls)

	// A different history prefix is a different cache key.
	p.Plan(ctx, "원점 복귀", []string{"previous turn"}, "")
	assert.Equal(t, 2, exp.calls)
}

func TestPlannerExpansionFailureFallsBack(t *testing.T) {
	exp := &fakeExpander{err: errors.New("quota exceeded")}
	p := NewPlanner(exp, 16, nil)

	plan := p.Plan(context.Background(), "valve torque", nil, "")
	assert.Equal(t, "valve torque", plan.ExpandedQuery)
}

func TestPlannerNilExpander(t *testing.T) {
	p := NewPlanner(nil, 16, nil)

	plan := p.Plan(context.Background(), "valve torque", nil, "manual.pdf")
	assert.Equal(t, "valve torque", plan.ExpandedQuery)
	assert.Equal(t, "manual.pdf", plan.DocScope)
}

func TestPlanQueries(t *testing.T) {
	plan := &RetrievalPlan{
		RawQuery:      "what does E101 mean",
		RefinedQuery:  "E101",
		ExpandedQuery: "E101 error code troubleshooting",
	}
	assert.Equal(t, []string{
		"E101",
		"E101 error code troubleshooting",
		"what does E101 mean",
	}, plan.Queries())
}

func TestPlanQueriesSkipsRawWhenIdenticalToRefined(t *testing.T) {
	plan := &RetrievalPlan{
		RawQuery:      "valve torque",
		RefinedQuery:  "valve torque",
		ExpandedQuery: "valve torque spec Nm",
	}
	queries := plan.Queries()
	require.Len(t, queries, 2)
	assert.Equal(t, "valve torque", queries[0])
	assert.Equal(t, "valve torque spec Nm", queries[1])
}

func TestPlanQueriesDropsEmpty(t *testing.T) {
	plan := &RetrievalPlan{RawQuery: "q", RefinedQuery: "q", ExpandedQuery: ""}
	assert.Equal(t, []string{"q"}, plan.Queries())
}
