package lexical

import (
	"strings"
	"sync"
	"unicode"
)

// Tokenizer identity strings persisted in snapshot manifests. A manifest
// built with a different tokenizer than the running process forces a rebuild.
const (
	TokenizerHangulBigram = "hangul_bigram"
	TokenizerWhitespace   = "whitespace"
)

// Tokenizer splits chunk content into index terms.
type Tokenizer interface {
	Name() string
	Tokenize(text string) []string
}

var (
	selectOnce sync.Once
	selected   Tokenizer

	// hangulAvailable is a capability probe, overridable in tests to force
	// the whitespace fallback path.
	hangulAvailable = func() bool { return true }
)

// Select returns the process-wide tokenizer. The choice is made once per
// process: the Hangul-aware tokenizer when available, naive whitespace
// splitting otherwise.
func Select() Tokenizer {
	selectOnce.Do(func() {
		if hangulAvailable() {
			selected = HangulTokenizer{}
		} else {
			selected = WhitespaceTokenizer{}
		}
	})
	return selected
}

// HangulTokenizer is a language-aware tokenizer for mixed Korean/Latin
// technical text. Latin and digit runs become lowercased word tokens;
// Hangul and CJK runs are decomposed into character bigrams, which
// approximates morpheme matching well enough for BM25 over manual text.
type HangulTokenizer struct{}

// Name returns the tokenizer identity string.
func (HangulTokenizer) Name() string { return TokenizerHangulBigram }

// Tokenize splits text into lowercased latin/digit words and CJK bigrams.
func (HangulTokenizer) Tokenize(text string) []string {
	var tokens []string
	var latin strings.Builder
	var cjk []rune

	flushLatin := func() {
		if latin.Len() > 0 {
			tokens = append(tokens, strings.ToLower(latin.String()))
			latin.Reset()
		}
	}
	flushCJK := func() {
		if len(cjk) == 1 {
			tokens = append(tokens, string(cjk))
		} else {
			for i := 0; i+1 < len(cjk); i++ {
				tokens = append(tokens, string(cjk[i:i+2]))
			}
		}
		cjk = cjk[:0]
	}

	for _, r := range text {
		switch {
		case isCJK(r):
			flushLatin()
			cjk = append(cjk, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if len(cjk) > 0 {
				flushCJK()
			}
			latin.WriteRune(r)
		default:
			flushLatin()
			if len(cjk) > 0 {
				flushCJK()
			}
		}
	}
	flushLatin()
	if len(cjk) > 0 {
		flushCJK()
	}

	return tokens
}

// isCJK reports whether r belongs to a script tokenized by bigrams.
func isCJK(r rune) bool {
	return unicode.Is(unicode.Hangul, r) ||
		unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r)
}

// WhitespaceTokenizer is the naive fallback: lowercased whitespace fields.
type WhitespaceTokenizer struct{}

// Name returns the tokenizer identity string.
func (WhitespaceTokenizer) Name() string { return TokenizerWhitespace }

// Tokenize splits text on whitespace.
func (WhitespaceTokenizer) Tokenize(text string) []string {
	fields := strings.Fields(text)
	for i, f := range fields {
		fields[i] = strings.ToLower(f)
	}
	return fields
}

// CountingTokenizer wraps a Tokenizer and counts Tokenize calls.
// Rebuild-skip behavior is verified by asserting the count stays zero.
type CountingTokenizer struct {
	mu    sync.Mutex
	inner Tokenizer
	calls int
}

// NewCountingTokenizer wraps inner with a call counter.
func NewCountingTokenizer(inner Tokenizer) *CountingTokenizer {
	return &CountingTokenizer{inner: inner}
}

// Name returns the inner tokenizer's identity.
func (c *CountingTokenizer) Name() string { return c.inner.Name() }

// Tokenize delegates to the inner tokenizer, incrementing the call count.
func (c *CountingTokenizer) Tokenize(text string) []string {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.inner.Tokenize(text)
}

// Calls returns the number of Tokenize invocations so far.
func (c *CountingTokenizer) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
