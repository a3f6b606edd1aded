package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// openDB opens a SQLite database with WAL mode for concurrent access.
// An empty path opens an in-memory database for testing.
func openDB(path string) (*sql.DB, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", filepath.Dir(path), err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// In-memory databases must be restricted to one connection, otherwise
	// each pooled connection sees its own empty database.
	if path == "" {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// ChunkDB persists chunk metadata and embeddings in SQLite.
// It backs the semantic index and is the source of truth for a tenant corpus.
type ChunkDB struct {
	db *sql.DB
}

const chunkSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	doc_id       TEXT PRIMARY KEY,
	doc_name     TEXT NOT NULL,
	page         INTEGER NOT NULL,
	chunk_type   TEXT NOT NULL,
	content      TEXT NOT NULL,
	chapter_path TEXT NOT NULL DEFAULT '',
	keywords     TEXT NOT NULL DEFAULT '',
	summary      TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	image_path   TEXT NOT NULL DEFAULT '',
	embedding    BLOB,
	created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_chunks_doc_page ON chunks(doc_name, page);
`

// NewChunkDB opens (creating if needed) a chunk database at path.
// An empty path creates an in-memory database for testing.
func NewChunkDB(path string) (*ChunkDB, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(chunkSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create chunk schema: %w", err)
	}
	return &ChunkDB{db: db}, nil
}

// SaveChunks upserts chunks with their embeddings in one transaction.
// chunks and vectors must have equal length; a nil vector stores NULL.
func (c *ChunkDB) SaveChunks(ctx context.Context, chunks []*Chunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (doc_id, doc_name, page, chunk_type, content,
			chapter_path, keywords, summary, title, image_path, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			doc_name=excluded.doc_name, page=excluded.page,
			chunk_type=excluded.chunk_type, content=excluded.content,
			chapter_path=excluded.chapter_path, keywords=excluded.keywords,
			summary=excluded.summary, title=excluded.title,
			image_path=excluded.image_path, embedding=excluded.embedding`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i, ch := range chunks {
		var blob []byte
		if vectors[i] != nil {
			blob = encodeVector(vectors[i])
		}
		if _, err := stmt.ExecContext(ctx, ch.DocID, ch.DocName, ch.Page,
			string(ch.ChunkType), ch.Content, ch.ChapterPath, ch.Keywords,
			ch.Summary, ch.Title, ch.ImagePath, blob); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", ch.DocID, err)
		}
	}

	return tx.Commit()
}

// GetChunks returns chunks matching the filter, ordered by doc_id.
// A zero filter returns the full corpus.
func (c *ChunkDB) GetChunks(ctx context.Context, filter Filter) ([]*Chunk, error) {
	query := `SELECT doc_id, doc_name, page, chunk_type, content,
		chapter_path, keywords, summary, title, image_path, created_at
		FROM chunks`
	var args []any
	switch {
	case filter.DocName != "" && filter.Page != 0:
		query += " WHERE doc_name = ? AND page = ?"
		args = append(args, filter.DocName, filter.Page)
	case filter.DocName != "":
		query += " WHERE doc_name = ?"
		args = append(args, filter.DocName)
	case filter.Page != 0:
		query += " WHERE page = ?"
		args = append(args, filter.Page)
	}
	query += " ORDER BY doc_id"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		ch := &Chunk{}
		var chunkType string
		if err := rows.Scan(&ch.DocID, &ch.DocName, &ch.Page, &chunkType,
			&ch.Content, &ch.ChapterPath, &ch.Keywords, &ch.Summary,
			&ch.Title, &ch.ImagePath, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		ch.ChunkType = ChunkType(chunkType)
		chunks = append(chunks, ch)
	}
	return chunks, rows.Err()
}

// GetChunksByID returns chunks by doc_id, preserving the requested order.
// Missing IDs are silently dropped.
func (c *ChunkDB) GetChunksByID(ctx context.Context, ids []string) ([]*Chunk, error) {
	byID := make(map[string]*Chunk, len(ids))
	for _, id := range ids {
		ch, err := c.getChunk(ctx, id)
		if err != nil {
			return nil, err
		}
		if ch != nil {
			byID[id] = ch
		}
	}
	result := make([]*Chunk, 0, len(byID))
	for _, id := range ids {
		if ch, ok := byID[id]; ok {
			result = append(result, ch)
		}
	}
	return result, nil
}

func (c *ChunkDB) getChunk(ctx context.Context, id string) (*Chunk, error) {
	ch := &Chunk{}
	var chunkType string
	err := c.db.QueryRowContext(ctx, `SELECT doc_id, doc_name, page, chunk_type,
		content, chapter_path, keywords, summary, title, image_path, created_at
		FROM chunks WHERE doc_id = ?`, id).Scan(
		&ch.DocID, &ch.DocName, &ch.Page, &chunkType, &ch.Content,
		&ch.ChapterPath, &ch.Keywords, &ch.Summary, &ch.Title, &ch.ImagePath,
		&ch.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chunk %s: %w", id, err)
	}
	ch.ChunkType = ChunkType(chunkType)
	return ch, nil
}

// AllDocIDs returns every doc_id in the corpus, sorted.
func (c *ChunkDB) AllDocIDs(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT doc_id FROM chunks ORDER BY doc_id")
	if err != nil {
		return nil, fmt.Errorf("query doc_ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListDocuments returns distinct document names, sorted.
func (c *ChunkDB) ListDocuments(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT DISTINCT doc_name FROM chunks ORDER BY doc_name")
	if err != nil {
		return nil, fmt.Errorf("query doc names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DeleteDocument removes all chunks of a document, returning the IDs removed.
func (c *ChunkDB) DeleteDocument(ctx context.Context, docName string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT doc_id FROM chunks WHERE doc_name = ?", docName)
	if err != nil {
		return nil, fmt.Errorf("query document chunks: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := c.db.ExecContext(ctx, "DELETE FROM chunks WHERE doc_name = ?", docName); err != nil {
		return nil, fmt.Errorf("delete document %s: %w", docName, err)
	}
	return ids, nil
}

// AllEmbeddings returns every stored (doc_id, vector) pair.
// Used to rebuild the HNSW graph when a tenant index is reopened.
func (c *ChunkDB) AllEmbeddings(ctx context.Context) (map[string][]float32, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT doc_id, embedding FROM chunks WHERE embedding IS NOT NULL")
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]float32)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		result[id] = decodeVector(blob)
	}
	return result, rows.Err()
}

// Count returns the number of chunks in the corpus.
func (c *ChunkDB) Count(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n)
	return n, err
}

// Close closes the underlying database.
func (c *ChunkDB) Close() error {
	return c.db.Close()
}

// encodeVector packs a float32 slice as little-endian bytes.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks little-endian bytes into a float32 slice.
func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
