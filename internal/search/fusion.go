// Package search implements query planning, hybrid lexical+semantic
// retrieval with weighted rank fusion, and context assembly.
package search

import (
	"sort"

	"github.com/askdoc/askdoc/internal/store"
)

// DefaultRRFConstant is the rank-smoothing constant in the fused score.
const DefaultRRFConstant = 60

// Weights are the per-branch fusion weights. They should sum to 1.
type Weights struct {
	Lexical  float64
	Semantic float64
}

// DefaultWeights weighs both branches equally.
func DefaultWeights() Weights {
	return Weights{Lexical: 0.5, Semantic: 0.5}
}

type fusedEntry struct {
	chunk       *store.Chunk
	score       float64
	firstBranch int
	firstRank   int
}

// Fuse merges ranked branch lists into one list by weighted reciprocal rank:
// a chunk at 1-based rank r in branch i contributes w_i/(r+c). Chunks are
// identified by DocID; ties break by earliest-appearing branch, then by that
// branch's internal rank. At most limit chunks are returned.
func Fuse(branches [][]*store.Chunk, weights []float64, c int, limit int) []*store.Chunk {
	if c <= 0 {
		c = DefaultRRFConstant
	}

	entries := make(map[string]*fusedEntry)
	order := make([]string, 0)

	for branch, chunks := range branches {
		w := 0.0
		if branch < len(weights) {
			w = weights[branch]
		}
		for i, chunk := range chunks {
			rank := i + 1
			e, ok := entries[chunk.DocID]
			if !ok {
				e = &fusedEntry{chunk: chunk, firstBranch: branch, firstRank: rank}
				entries[chunk.DocID] = e
				order = append(order, chunk.DocID)
			}
			e.score += w / float64(rank+c)
		}
	}

	sorted := make([]*fusedEntry, 0, len(entries))
	for _, id := range order {
		sorted = append(sorted, entries[id])
	}
	sort.SliceStable(sorted, func(a, b int) bool {
		if sorted[a].score != sorted[b].score {
			return sorted[a].score > sorted[b].score
		}
		if sorted[a].firstBranch != sorted[b].firstBranch {
			return sorted[a].firstBranch < sorted[b].firstBranch
		}
		return sorted[a].firstRank < sorted[b].firstRank
	})

	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}

	result := make([]*store.Chunk, len(sorted))
	for i, e := range sorted {
		result[i] = e.chunk
	}
	return result
}
