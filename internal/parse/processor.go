// Package parse implements the per-page processing step of ingestion:
// skip pre-check, parsed-page cache lookup, and the retried call to the
// external multimodal parser.
package parse

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	askerr "github.com/askdoc/askdoc/internal/errors"
	"github.com/askdoc/askdoc/internal/pdf"
	"github.com/askdoc/askdoc/internal/store"
)

// MinPageTextChars is the embedded-text threshold below which a page with no
// raster images is skipped without calling the parser.
const MinPageTextChars = 50

// Outcome classifies the processing result of one page.
type Outcome int

const (
	// OutcomeParsed means structured content was produced.
	OutcomeParsed Outcome = iota
	// OutcomeSkipped means the pre-check decided the page has no content
	// worth parsing.
	OutcomeSkipped
	// OutcomeFailed means parsing failed after all retries. Failure is
	// terminal for the page, never for the document.
	OutcomeFailed
)

// String returns the outcome label used in logs and job messages.
func (o Outcome) String() string {
	switch o {
	case OutcomeParsed:
		return "parsed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of processing one page.
type Result struct {
	Page    int
	Outcome Outcome
	Content *store.ParsedPage
	Err     error
}

// Parser is the external multimodal page parser collaborator.
type Parser interface {
	ParsePage(ctx context.Context, docBytes []byte, page int) (*store.ParsedPage, error)
}

// Processor runs the skip pre-check, consults the parsed-page cache, and
// calls the parser with retries on a miss. It never lets a page failure
// escape as anything other than a failed Result.
type Processor struct {
	parser  Parser
	cache   store.PageCache
	retry   askerr.RetryConfig
	minText int
	logger  *slog.Logger
}

// NewProcessor creates a page processor. A nil cache disables memoization.
func NewProcessor(parser Parser, cache store.PageCache, retry askerr.RetryConfig, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		parser:  parser,
		cache:   cache,
		retry:   retry,
		minText: MinPageTextChars,
		logger:  logger,
	}
}

// Process handles one page of a document. docBytes is the full document;
// page carries the pre-extracted text and image signals.
func (p *Processor) Process(ctx context.Context, docName string, docBytes []byte, page pdf.PageData) Result {
	if utf8.RuneCountInString(page.Text) < p.minText && !page.HasImages {
		p.logger.Debug("page_skipped",
			slog.String("doc", docName),
			slog.Int("page", page.Num))
		return Result{Page: page.Num, Outcome: OutcomeSkipped}
	}

	if p.cache != nil {
		cached, ok, err := p.cache.Get(ctx, docName, page.Num)
		if err != nil {
			p.logger.Warn("page_cache_read_failed",
				slog.String("doc", docName),
				slog.Int("page", page.Num),
				slog.String("error", err.Error()))
		} else if ok {
			p.logger.Debug("page_cache_hit",
				slog.String("doc", docName),
				slog.Int("page", page.Num))
			return Result{Page: page.Num, Outcome: OutcomeParsed, Content: cached}
		}
	}

	content, err := askerr.RetryWithResult(ctx, p.retry, func() (*store.ParsedPage, error) {
		return p.parser.ParsePage(ctx, docBytes, page.Num)
	})
	if err != nil {
		exhausted := askerr.ParseExhaustedError(
			fmt.Sprintf("page %d of %s failed to parse", page.Num, docName), err)
		p.logger.Warn("page_parse_exhausted",
			slog.String("doc", docName),
			slog.Int("page", page.Num),
			slog.String("error", err.Error()))
		return Result{Page: page.Num, Outcome: OutcomeFailed, Err: exhausted}
	}

	if p.cache != nil {
		if err := p.cache.Put(ctx, docName, page.Num, content); err != nil {
			p.logger.Warn("page_cache_write_failed",
				slog.String("doc", docName),
				slog.Int("page", page.Num),
				slog.String("error", err.Error()))
		}
	}

	return Result{Page: page.Num, Outcome: OutcomeParsed, Content: content}
}
