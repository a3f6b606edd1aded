package search

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultExpansionCacheSize bounds the in-process expansion cache.
const DefaultExpansionCacheSize = 256

// maxPageFilter is the largest page number accepted as a page reference.
const maxPageFilter = 3000

// codePattern matches technical codes: one uppercase letter then 3-4 digits.
var codePattern = regexp.MustCompile(`\b[A-Z][0-9]{3,4}\b`)

// pagePatterns recognize page references in multiple surface forms.
// Order matters: the first matching pattern wins.
var pagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d+)\s*페이지`),
	regexp.MustCompile(`(?i)(\d+)\s*page\b`),
	regexp.MustCompile(`(?i)p\.\s*(\d+)`),
	regexp.MustCompile(`(?i)\bpage\s+(\d+)`),
}

// RetrievalPlan is the derived, per-query routing decision. Ephemeral.
type RetrievalPlan struct {
	RawQuery      string
	ExpandedQuery string
	RefinedQuery  string
	PageFilter    int    // 0 means no page restriction
	DocScope      string // empty means all documents
}

// Queries returns the distinct non-empty sub-queries to retrieve for, in
// priority order. RawQuery is dropped when identical to RefinedQuery.
func (p *RetrievalPlan) Queries() []string {
	candidates := []string{p.RefinedQuery, p.ExpandedQuery, p.RawQuery}
	seen := make(map[string]struct{}, len(candidates))
	queries := make([]string, 0, len(candidates))
	for _, q := range candidates {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		queries = append(queries, q)
	}
	return queries
}

// Expander is the external query-rewriting collaborator.
type Expander interface {
	ExpandQuery(ctx context.Context, query string) (string, error)
}

// Planner builds retrieval plans: query expansion with an in-process cache,
// code refinement, and page-reference extraction.
type Planner struct {
	expander Expander
	cache    *lru.Cache[string, string]
	logger   *slog.Logger
}

// NewPlanner creates a Planner. A nil expander disables expansion; the
// expanded query then falls back to the raw query.
func NewPlanner(expander Expander, cacheSize int, logger *slog.Logger) *Planner {
	if cacheSize <= 0 {
		cacheSize = DefaultExpansionCacheSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	cache, _ := lru.New[string, string](cacheSize)
	return &Planner{expander: expander, cache: cache, logger: logger}
}

// Plan derives the retrieval plan for a raw query. history is the recent
// conversation context handed to the expander; docScope is the caller's
// explicit document filter.
func (p *Planner) Plan(ctx context.Context, rawQuery string, history []string, docScope string) *RetrievalPlan {
	plan := &RetrievalPlan{
		RawQuery:     rawQuery,
		RefinedQuery: refineQuery(rawQuery),
		PageFilter:   extractPageFilter(rawQuery),
		DocScope:     docScope,
	}
	plan.ExpandedQuery = p.expand(ctx, rawQuery, history)
	return plan
}

// expand returns the rewritten query, memoized by (history prefix, query).
// Expansion failures degrade to the raw query.
func (p *Planner) expand(ctx context.Context, rawQuery string, history []string) string {
	if p.expander == nil {
		return rawQuery
	}

	key := strings.Join(history, "\x1f") + "\x00" + rawQuery
	if cached, ok := p.cache.Get(key); ok {
		return cached
	}

	query := rawQuery
	if len(history) > 0 {
		query = strings.Join(history, "\n") + "\n\n" + rawQuery
	}
	expanded, err := p.expander.ExpandQuery(ctx, query)
	if err != nil || strings.TrimSpace(expanded) == "" {
		if err != nil {
			p.logger.Warn("query_expansion_failed",
				slog.String("query", rawQuery),
				slog.String("error", err.Error()))
		}
		return rawQuery
	}

	p.cache.Add(key, expanded)
	return expanded
}

// refineQuery extracts technical codes from the query. With no codes
// present the query is returned unchanged.
func refineQuery(rawQuery string) string {
	codes := codePattern.FindAllString(rawQuery, -1)
	if len(codes) == 0 {
		return rawQuery
	}
	return strings.Join(codes, " ")
}

// extractPageFilter scans for a page reference. Patterns are tried in
// order and the first match wins; values outside [1, 3000] are rejected.
func extractPageFilter(rawQuery string) int {
	for _, pattern := range pagePatterns {
		m := pattern.FindStringSubmatch(rawQuery)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n >= 1 && n <= maxPageFilter {
			return n
		}
		return 0
	}
	return 0
}
