package maintenance

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/askdoc/askdoc/internal/blobstore"
	"github.com/askdoc/askdoc/internal/store"
)

// CacheCleanup purges parsed-page cache entries older than TTL.
type CacheCleanup struct {
	cache  store.PageCache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCacheCleanup creates a cleanup job. A zero ttl keeps everything.
func NewCacheCleanup(cache store.PageCache, ttl time.Duration, logger *slog.Logger) *CacheCleanup {
	if logger == nil {
		logger = slog.Default()
	}
	return &CacheCleanup{cache: cache, ttl: ttl, logger: logger}
}

func (j *CacheCleanup) Name() string { return "page_cache_cleanup" }

func (j *CacheCleanup) Run(ctx context.Context) error {
	if j.ttl <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-j.ttl)
	removed, err := j.cache.Purge(ctx, cutoff)
	if err != nil {
		return err
	}
	j.logger.Info("page_cache_purged",
		slog.Int("removed", removed),
		slog.Time("cutoff", cutoff))
	return nil
}

// SnapshotMirror copies tenant chunk databases and lexical manifests to
// the blob store so a fresh node can warm up without reparsing.
type SnapshotMirror struct {
	tenantsDir string
	blobs      blobstore.Store
	logger     *slog.Logger
}

// NewSnapshotMirror creates a mirror job rooted at tenantsDir.
func NewSnapshotMirror(tenantsDir string, blobs blobstore.Store, logger *slog.Logger) *SnapshotMirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotMirror{tenantsDir: tenantsDir, blobs: blobs, logger: logger}
}

func (j *SnapshotMirror) Name() string { return "snapshot_mirror" }

func (j *SnapshotMirror) Run(ctx context.Context) error {
	var mirrored int
	err := filepath.WalkDir(j.tenantsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !mirrorable(d.Name()) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, err := filepath.Rel(j.tenantsDir, path)
		if err != nil {
			return err
		}
		key := "snapshots/" + filepath.ToSlash(rel)

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		saveErr := j.blobs.Save(ctx, key, f)
		_ = f.Close()
		if saveErr != nil {
			return saveErr
		}
		mirrored++
		return nil
	})
	if err != nil {
		return err
	}
	j.logger.Info("snapshots_mirrored", slog.Int("files", mirrored))
	return nil
}

// mirrorable reports whether a tenant file belongs in the mirror. Live
// bleve segment files are skipped; the lexical index is rebuilt from the
// chunk database on restore.
func mirrorable(name string) bool {
	return name == "chunks.db" || name == "manifest.json" || strings.HasSuffix(name, ".pdf")
}
