package lexical

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHangulTokenizer(t *testing.T) {
	tok := HangulTokenizer{}

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "latin words lowercased",
			input: "Pump Maintenance",
			want:  []string{"pump", "maintenance"},
		},
		{
			name:  "hangul run becomes bigrams",
			input: "안전밸브",
			want:  []string{"안전", "전밸", "밸브"},
		},
		{
			name:  "single hangul char kept as unigram",
			input: "물",
			want:  []string{"물"},
		},
		{
			name:  "mixed korean and error code",
			input: "오류 E101 발생",
			want:  []string{"오류", "e101", "발생"},
		},
		{
			name:  "punctuation splits runs",
			input: "밸브, 점검",
			want:  []string{"밸브", "점검"},
		},
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tok.Tokenize(tt.input))
		})
	}
}

func TestWhitespaceTokenizer(t *testing.T) {
	tok := WhitespaceTokenizer{}
	assert.Equal(t, []string{"pump", "seal", "kit"}, tok.Tokenize("Pump  Seal\tKIT"))
	assert.Empty(t, tok.Tokenize("   "))
}

func TestTokenizerNames(t *testing.T) {
	assert.Equal(t, TokenizerHangulBigram, HangulTokenizer{}.Name())
	assert.Equal(t, TokenizerWhitespace, WhitespaceTokenizer{}.Name())
}

func TestCountingTokenizer(t *testing.T) {
	counting := NewCountingTokenizer(WhitespaceTokenizer{})
	assert.Equal(t, 0, counting.Calls())

	counting.Tokenize("one two")
	counting.Tokenize("three")
	assert.Equal(t, 2, counting.Calls())
	assert.Equal(t, TokenizerWhitespace, counting.Name())
}
