package parse

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	askerr "github.com/askdoc/askdoc/internal/errors"
	"github.com/askdoc/askdoc/internal/pdf"
	"github.com/askdoc/askdoc/internal/store"
)

type fakeParser struct {
	calls    int
	failures int
	result   *store.ParsedPage
}

func (f *fakeParser) ParsePage(ctx context.Context, docBytes []byte, page int) (*store.ParsedPage, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, askerr.ParseTransientError("model overloaded", errors.New("503"))
	}
	if f.result != nil {
		return f.result, nil
	}
	return &store.ParsedPage{Text: "parsed"}, nil
}

func fastRetry() askerr.RetryConfig {
	return askerr.RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   2.0,
	}
}

func textPage(num int, text string) pdf.PageData {
	return pdf.PageData{Num: num, Text: text}
}

func longText() string {
	return strings.Repeat("maintenance procedure ", 10)
}

func TestProcessorSkipsSparseTextOnlyPage(t *testing.T) {
	parser := &fakeParser{}
	p := NewProcessor(parser, nil, fastRetry(), nil)

	res := p.Process(context.Background(), "manual.pdf", nil, textPage(1, "short"))

	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Equal(t, 0, parser.calls)
}

func TestProcessorParsesSparsePageWithImages(t *testing.T) {
	parser := &fakeParser{}
	p := NewProcessor(parser, nil, fastRetry(), nil)

	res := p.Process(context.Background(), "manual.pdf", nil, pdf.PageData{Num: 1, Text: "fig", HasImages: true})

	assert.Equal(t, OutcomeParsed, res.Outcome)
	assert.Equal(t, 1, parser.calls)
}

func TestProcessorParsesDensePage(t *testing.T) {
	parser := &fakeParser{result: &store.ParsedPage{Text: "content", Title: "Manual"}}
	p := NewProcessor(parser, nil, fastRetry(), nil)

	res := p.Process(context.Background(), "manual.pdf", nil, textPage(2, longText()))

	require.Equal(t, OutcomeParsed, res.Outcome)
	assert.Equal(t, "Manual", res.Content.Title)
}

func TestProcessorCacheHitSkipsParser(t *testing.T) {
	cache, err := store.NewSQLitePageCache(":memory:")
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()

	ctx := context.Background()
	require.NoError(t, cache.Put(ctx, "manual.pdf", 2, &store.ParsedPage{Text: "cached"}))

	parser := &fakeParser{}
	p := NewProcessor(parser, cache, fastRetry(), nil)

	res := p.Process(ctx, "manual.pdf", nil, textPage(2, longText()))

	require.Equal(t, OutcomeParsed, res.Outcome)
	assert.Equal(t, "cached", res.Content.Text)
	assert.Equal(t, 0, parser.calls)
}

func TestProcessorWritesCacheAfterParse(t *testing.T) {
	cache, err := store.NewSQLitePageCache(":memory:")
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()

	parser := &fakeParser{}
	p := NewProcessor(parser, cache, fastRetry(), nil)
	ctx := context.Background()

	res := p.Process(ctx, "manual.pdf", nil, textPage(3, longText()))
	require.Equal(t, OutcomeParsed, res.Outcome)

	got, ok, err := cache.Get(ctx, "manual.pdf", 3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "parsed", got.Text)
}

func TestProcessorRetriesTransientFailures(t *testing.T) {
	parser := &fakeParser{failures: 2}
	p := NewProcessor(parser, nil, fastRetry(), nil)

	res := p.Process(context.Background(), "manual.pdf", nil, textPage(1, longText()))

	assert.Equal(t, OutcomeParsed, res.Outcome)
	assert.Equal(t, 3, parser.calls)
}

func TestProcessorFailsAfterRetriesExhausted(t *testing.T) {
	parser := &fakeParser{failures: 10}
	p := NewProcessor(parser, nil, fastRetry(), nil)

	res := p.Process(context.Background(), "manual.pdf", nil, textPage(1, longText()))

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, 4, parser.calls)
	assert.Equal(t, askerr.ErrCodeParseExhausted, askerr.CodeOf(res.Err))
}
