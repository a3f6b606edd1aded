// Package ingest runs document ingestion: fan-out page processing under a
// concurrency budget, chunk building, index updates, and the job queue.
package ingest

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/askdoc/askdoc/internal/store"
)

// minTextChunkChars is the threshold below which a page's running text does
// not become its own chunk. Tables and image descriptions are kept
// regardless.
const minTextChunkChars = 10

// BuildChunks converts one parsed page into indexable chunks: at most one
// text chunk, one chunk per table, and one per described image. Chunk
// indexes are assigned in that order, so doc IDs are stable across
// re-ingestion. title is the document-level title resolved by the runner
// and applied uniformly.
func BuildChunks(docName string, page int, content *store.ParsedPage, title, imagePath string) []*store.Chunk {
	keywords := strings.Join(content.Keywords, ", ")
	now := time.Now().UTC()

	base := func(chunkType store.ChunkType, text string, index int) *store.Chunk {
		return &store.Chunk{
			DocID:       store.ChunkID(docName, page, index),
			DocName:     docName,
			Page:        page,
			ChunkType:   chunkType,
			Content:     text,
			ChapterPath: content.ChapterPath,
			Keywords:    keywords,
			Summary:     content.Summary,
			Title:       title,
			ImagePath:   imagePath,
			CreatedAt:   now,
		}
	}

	var chunks []*store.Chunk
	if utf8.RuneCountInString(strings.TrimSpace(content.Text)) > minTextChunkChars {
		chunks = append(chunks, base(store.ChunkTypeText, content.Text, len(chunks)))
	}
	for _, table := range content.Tables {
		chunks = append(chunks, base(store.ChunkTypeTable, table, len(chunks)))
	}
	for _, image := range content.Images {
		if image.Description == "" {
			continue
		}
		chunks = append(chunks, base(store.ChunkTypeImageDescription, image.Description, len(chunks)))
	}
	return chunks
}
