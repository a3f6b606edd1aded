// Package store provides the persistence layer for askdoc: the chunk
// metadata store (SQLite), the semantic vector index (HNSW), the parsed-page
// cache, and the ingestion job store. All stores are tenant-scoped.
package store

import (
	"context"
	"fmt"
	"time"
)

// ChunkType represents the type of content in a chunk.
type ChunkType string

const (
	ChunkTypeText             ChunkType = "text"
	ChunkTypeTable            ChunkType = "table"
	ChunkTypeImageDescription ChunkType = "image_description"
)

// Chunk is the smallest indexed unit of document content.
// DocID is globally unique within a tenant and is the join key between the
// lexical and semantic index.
type Chunk struct {
	DocID       string    // {doc_name}_p{page}_chunk_{i}
	DocName     string    // Tenant-scoped source document name
	Page        int       // 1-based page number
	ChunkType   ChunkType // text, table, image_description
	Content     string    // Indexed text content
	ChapterPath string    // Optional chapter/section hierarchy
	Keywords    string    // Comma-joined keyword list
	Summary     string    // Optional page summary
	Title       string    // Optional document title
	ImagePath   string    // Reference to an external thumbnail asset
	CreatedAt   time.Time
}

// ChunkID builds the stable chunk identifier.
func ChunkID(docName string, page, index int) string {
	return fmt.Sprintf("%s_p%d_chunk_%d", docName, page, index)
}

// PageImage is one embedded image extracted from a page.
type PageImage struct {
	Description string `json:"description"`
	Caption     string `json:"caption,omitempty"`
}

// ParsedPage is the structured result of the external multimodal page parser.
type ParsedPage struct {
	Text        string      `json:"text"`
	Tables      []string    `json:"tables"`
	Images      []PageImage `json:"images"`
	ChapterPath string      `json:"chapter_path,omitempty"`
	Keywords    []string    `json:"keywords"`
	Summary     string      `json:"summary,omitempty"`
	Title       string      `json:"document_title,omitempty"`
}

// Filter restricts retrieval to a document and/or an exact page.
// Zero values mean "no restriction".
type Filter struct {
	DocName string
	Page    int
}

// IsZero reports whether the filter restricts nothing.
func (f Filter) IsZero() bool {
	return f.DocName == "" && f.Page == 0
}

// Matches reports whether a chunk satisfies the filter.
func (f Filter) Matches(c *Chunk) bool {
	if f.DocName != "" && c.DocName != f.DocName {
		return false
	}
	if f.Page != 0 && c.Page != f.Page {
		return false
	}
	return true
}

// Embedder computes text embeddings for the semantic index.
// Implementations live in internal/embed.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// SemanticIndex is the wrapped vector-store collaborator: embedding
// similarity search plus exact metadata fetches. It is the source of truth
// for a tenant's chunk corpus.
type SemanticIndex interface {
	// Add inserts chunks, computing their embeddings. Existing DocIDs are replaced.
	Add(ctx context.Context, chunks []*Chunk) error

	// Search returns up to k chunks ranked by embedding similarity,
	// restricted by filter when non-zero.
	Search(ctx context.Context, query string, k int, filter Filter) ([]*Chunk, error)

	// Get returns chunks matching the filter exactly, ordered by DocID.
	// A zero filter returns the full corpus.
	Get(ctx context.Context, filter Filter) ([]*Chunk, error)

	// AllDocIDs returns the corpus doc_id set (for lexical snapshot diffing).
	AllDocIDs(ctx context.Context) ([]string, error)

	// ListDocuments returns the distinct document names in the corpus.
	ListDocuments(ctx context.Context) ([]string, error)

	// DeleteDocument removes all chunks of a document, returning the count.
	DeleteDocument(ctx context.Context, docName string) (int, error)

	// Count returns the number of chunks in the corpus.
	Count(ctx context.Context) (int, error)

	Close() error
}

// JobStatus is an ingestion job lifecycle state.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IngestionJob tracks the processing of one uploaded document.
// Failure of an individual page never terminates the job early; the job
// fails only on document-level errors.
type IngestionJob struct {
	JobID        string
	UID          string
	DocName      string
	Status       JobStatus
	Progress     int // 0-100
	TotalPages   int
	SuccessCount int
	SkipCount    int
	FailCount    int
	Message      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// JobStore persists ingestion job records keyed by job_id.
// It is injected into the ingestion runner; polling callers read from it.
type JobStore interface {
	Create(ctx context.Context, job *IngestionJob) error
	Get(ctx context.Context, jobID string) (*IngestionJob, error)
	Update(ctx context.Context, job *IngestionJob) error
	List(ctx context.Context, uid string) ([]*IngestionJob, error)
	Close() error
}

// PageCache memoizes parsed pages keyed by (doc_name, page_num).
// A hit must be returned without any external parser call.
type PageCache interface {
	Get(ctx context.Context, docName string, page int) (*ParsedPage, bool, error)
	Put(ctx context.Context, docName string, page int, content *ParsedPage) error

	// Purge removes entries older than the cutoff, returning the count removed.
	Purge(ctx context.Context, olderThan time.Time) (int, error)

	Close() error
}
