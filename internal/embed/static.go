package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// StaticDimensions is the vector width of the offline embedder.
const StaticDimensions = 768

// Token and n-gram contribution weights.
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 2
)

// StaticEmbedder generates deterministic hash-based embeddings without any
// network dependency. Used for tests and offline operation; semantic quality
// is reduced compared to a model backend.
type StaticEmbedder struct{}

// NewStaticEmbedder creates a static embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// Embed generates a normalized hash-based vector for text.
func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, StaticDimensions), nil
	}

	vector := make([]float32, StaticDimensions)
	tokens := staticTokens(trimmed)

	for _, token := range tokens {
		vector[hashToIndex(token)] += tokenWeight
		runes := []rune(token)
		for i := 0; i+ngramSize <= len(runes); i++ {
			vector[hashToIndex(string(runes[i:i+ngramSize]))] += ngramWeight
		}
	}

	return normalizeVector(vector), nil
}

// Dimensions returns the vector width.
func (e *StaticEmbedder) Dimensions() int {
	return StaticDimensions
}

// ModelName returns the static model identifier.
func (e *StaticEmbedder) ModelName() string {
	return "static-hash"
}

// staticTokens splits text into lowercased letter/digit runs. Hangul and
// other non-latin letters are kept as part of tokens.
func staticTokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// hashToIndex maps a term to a vector slot.
func hashToIndex(term string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	return int(h.Sum32() % uint32(StaticDimensions))
}

// normalizeVector scales a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}
