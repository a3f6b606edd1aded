package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	askerr "github.com/askdoc/askdoc/internal/errors"
)

// SQLitePageCache memoizes parsed pages keyed by (doc_name, page_num).
// Entries are JSON-serialized ParsedPage records; a hit lets the page
// processor skip the external parser entirely (strict idempotence).
type SQLitePageCache struct {
	db *sql.DB
}

var _ PageCache = (*SQLitePageCache)(nil)

const pageCacheSchema = `
CREATE TABLE IF NOT EXISTS parsed_pages (
	doc_name   TEXT NOT NULL,
	page       INTEGER NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (doc_name, page)
);
`

// NewSQLitePageCache opens (creating if needed) a page cache at path.
// An empty path creates an in-memory cache for testing.
func NewSQLitePageCache(path string) (*SQLitePageCache, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(pageCacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create page cache schema: %w", err)
	}
	return &SQLitePageCache{db: db}, nil
}

// Get returns the cached parsed page, if present.
func (c *SQLitePageCache) Get(ctx context.Context, docName string, page int) (*ParsedPage, bool, error) {
	var raw string
	err := c.db.QueryRowContext(ctx,
		"SELECT content FROM parsed_pages WHERE doc_name = ? AND page = ?",
		docName, page).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, askerr.StoreUnavailableError("page cache get", err)
	}

	var content ParsedPage
	if err := json.Unmarshal([]byte(raw), &content); err != nil {
		// A corrupt entry behaves like a miss; the page will be re-parsed
		// and the entry overwritten.
		return nil, false, nil
	}
	return &content, true, nil
}

// Put stores a parsed page, replacing any existing entry.
func (c *SQLitePageCache) Put(ctx context.Context, docName string, page int, content *ParsedPage) error {
	raw, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("marshal parsed page: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO parsed_pages (doc_name, page, content, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(doc_name, page) DO UPDATE SET
			content = excluded.content, created_at = excluded.created_at`,
		docName, page, string(raw), time.Now().UTC())
	if err != nil {
		return askerr.StoreUnavailableError("page cache put", err)
	}
	return nil
}

// Purge removes entries older than the cutoff, returning the count removed.
func (c *SQLitePageCache) Purge(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := c.db.ExecContext(ctx,
		"DELETE FROM parsed_pages WHERE created_at < ?", olderThan.UTC())
	if err != nil {
		return 0, askerr.StoreUnavailableError("page cache purge", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close closes the underlying database.
func (c *SQLitePageCache) Close() error {
	return c.db.Close()
}
