package lexical

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search/query"

	askerr "github.com/askdoc/askdoc/internal/errors"
	"github.com/askdoc/askdoc/internal/store"
)

const (
	// DocTokenizerName is the bleve registry name of the document tokenizer.
	DocTokenizerName = "doc_tokenizer"

	// DocAnalyzerName is the bleve registry name of the document analyzer.
	DocAnalyzerName = "doc_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(DocTokenizerName, docTokenizerConstructor)
}

var (
	activeMu        sync.RWMutex
	activeTokenizer Tokenizer
)

// ActiveTokenizer returns the tokenizer the bleve analyzer delegates to.
func ActiveTokenizer() Tokenizer {
	activeMu.RLock()
	t := activeTokenizer
	activeMu.RUnlock()
	if t != nil {
		return t
	}
	return Select()
}

// SetActiveTokenizer overrides the tokenizer used by the bleve analyzer.
// Passing nil restores the process default.
func SetActiveTokenizer(t Tokenizer) {
	activeMu.Lock()
	activeTokenizer = t
	activeMu.Unlock()
}

// docTokenizerConstructor builds the bleve adapter around the active tokenizer.
func docTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &bleveDocTokenizer{}, nil
}

// bleveDocTokenizer adapts the package tokenizer to bleve's analysis API.
type bleveDocTokenizer struct{}

// Tokenize implements analysis.Tokenizer.
func (t *bleveDocTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := ActiveTokenizer().Tokenize(text)

	result := make(analysis.TokenStream, 0, len(tokens))
	pos := 1
	offset := 0

	for _, token := range tokens {
		start := strings.Index(strings.ToLower(text[offset:]), strings.ToLower(token))
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)

		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		if end <= len(text) {
			offset = end
		}
	}

	return result
}

// Result is a single lexical hit.
type Result struct {
	DocID string
	Score float64
}

// Index wraps a bleve index over chunk content for BM25 ranking.
type Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// bleveDoc is the indexed document shape. Keywords and chapter path are
// folded into content so heading terms are searchable alongside body text.
type bleveDoc struct {
	Content string `json:"content"`
	DocName string `json:"doc_name"`
	Page    int    `json:"page"`
}

// NewIndex creates a fresh on-disk index at path, or an in-memory index
// when path is empty.
func NewIndex(path string) (*Index, error) {
	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		idx, err = bleve.New(path, indexMapping)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &Index{index: idx, path: path}, nil
}

// OpenIndex reopens an existing on-disk index. Reopening never tokenizes:
// the persisted segments are used as-is.
func OpenIndex(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if err != nil {
		return nil, askerr.CorruptIndexError(path, err)
	}
	return &Index{index: idx, path: path}, nil
}

func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(DocAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": DocTokenizerName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	docMapping := bleve.NewDocumentMapping()

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = DocAnalyzerName
	docMapping.AddFieldMappingsAt("content", contentField)

	docNameField := bleve.NewTextFieldMapping()
	docNameField.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("doc_name", docNameField)

	pageField := bleve.NewNumericFieldMapping()
	docMapping.AddFieldMappingsAt("page", pageField)

	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = DocAnalyzerName

	return indexMapping, nil
}

// Add indexes chunks in a single batch.
func (ix *Index) Add(ctx context.Context, chunks []*store.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.closed {
		return fmt.Errorf("index is closed")
	}

	batch := ix.index.NewBatch()
	for _, c := range chunks {
		doc := bleveDoc{
			Content: searchableText(c),
			DocName: c.DocName,
			Page:    c.Page,
		}
		if err := batch.Index(c.DocID, doc); err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", c.DocID, err)
		}
	}

	if err := ix.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// searchableText folds keywords and the chapter path into the content so
// heading-only queries still match body chunks.
func searchableText(c *store.Chunk) string {
	parts := []string{c.Content}
	if c.ChapterPath != "" {
		parts = append(parts, c.ChapterPath)
	}
	if c.Keywords != "" {
		parts = append(parts, c.Keywords)
	}
	return strings.Join(parts, "\n")
}

// Search returns the top k chunks matching queryStr, BM25-scored, with the
// filter applied as index-level conjunctions.
func (ix *Index) Search(ctx context.Context, queryStr string, k int, filter store.Filter) ([]Result, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if strings.TrimSpace(queryStr) == "" {
		return []Result{}, nil
	}

	matchQuery := bleve.NewMatchQuery(queryStr)
	matchQuery.SetField("content")

	var q query.Query = matchQuery
	if !filter.IsZero() {
		conjuncts := []query.Query{matchQuery}
		if filter.DocName != "" {
			tq := bleve.NewTermQuery(filter.DocName)
			tq.SetField("doc_name")
			conjuncts = append(conjuncts, tq)
		}
		if filter.Page > 0 {
			p := float64(filter.Page)
			inclusive := true
			nq := bleve.NewNumericRangeInclusiveQuery(&p, &p, &inclusive, &inclusive)
			nq.SetField("page")
			conjuncts = append(conjuncts, nq)
		}
		q = bleve.NewConjunctionQuery(conjuncts...)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = k

	result, err := ix.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	results := make([]Result, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, Result{DocID: hit.ID, Score: hit.Score})
	}
	return results, nil
}

// Delete removes chunks from the index by ID.
func (ix *Index) Delete(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.closed {
		return fmt.Errorf("index is closed")
	}

	batch := ix.index.NewBatch()
	for _, id := range docIDs {
		batch.Delete(id)
	}
	if err := ix.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// DocCount returns the number of indexed chunks.
func (ix *Index) DocCount() (uint64, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.closed {
		return 0, fmt.Errorf("index is closed")
	}
	return ix.index.DocCount()
}

// Path returns the on-disk location, empty for in-memory indexes.
func (ix *Index) Path() string {
	return ix.path
}

// Close releases the underlying bleve index.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.closed {
		return nil
	}
	ix.closed = true
	if ix.index != nil {
		return ix.index.Close()
	}
	return nil
}
