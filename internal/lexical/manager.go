package lexical

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/askdoc/askdoc/internal/store"
)

const (
	indexDirName    = "index.bleve"
	manifestName    = "manifest.json"
	rebuildLockName = "rebuild.lock"
)

// ChunkSource supplies the chunks an index snapshot is built from.
// *store.ChunkDB satisfies it.
type ChunkSource interface {
	AllDocIDs(ctx context.Context) ([]string, error)
	GetChunks(ctx context.Context, filter store.Filter) ([]*store.Chunk, error)
}

// Manager owns one lexical index per tenant. Non-forced access reuses the
// open handle or the persisted snapshot as-is, without scanning the chunk
// store. A forced refresh (or a missing snapshot) diffs the snapshot's doc
// ID set against the store: an equal set reuses the snapshot unchanged, so
// re-ingesting an already indexed corpus tokenizes nothing; any difference,
// a tokenizer change, or a corrupt snapshot triggers a rebuild. Concurrent
// readers keep the old generation until the swap completes.
type Manager struct {
	mu        sync.Mutex
	tenants   map[string]*tenantIndex
	tenantDir func(uid string) string
	logger    *slog.Logger
}

type tenantIndex struct {
	mu       sync.RWMutex
	index    *Index
	manifest *Manifest
}

// NewManager creates a Manager resolving tenant directories via tenantDir.
func NewManager(tenantDir func(uid string) string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		tenants:   make(map[string]*tenantIndex),
		tenantDir: tenantDir,
		logger:    logger,
	}
}

func (m *Manager) tenant(uid string) *tenantIndex {
	m.mu.Lock()
	defer m.mu.Unlock()
	ti, ok := m.tenants[uid]
	if !ok {
		ti = &tenantIndex{}
		m.tenants[uid] = ti
	}
	return ti
}

func (m *Manager) lexicalDir(uid string) string {
	return filepath.Join(m.tenantDir(uid), "lexical")
}

// Get returns the tenant's lexical index. The read path trusts whatever is
// already open or persisted; only a forced refresh (or a missing snapshot)
// consults the chunk store, and even then an unchanged doc ID set reuses
// the snapshot without tokenizing.
func (m *Manager) Get(ctx context.Context, uid string, source ChunkSource, force bool) (*Index, error) {
	tokenizer := ActiveTokenizer().Name()
	ti := m.tenant(uid)

	if !force {
		ti.mu.RLock()
		if ti.index != nil && ti.manifest != nil && ti.manifest.Tokenizer == tokenizer {
			idx := ti.index
			ti.mu.RUnlock()
			return idx, nil
		}
		ti.mu.RUnlock()

		if idx, manifest := m.reopenSnapshot(uid, tokenizer); idx != nil {
			m.install(ti, idx, manifest)
			return idx, nil
		}
		// No usable snapshot: fall through to the diff-and-rebuild path.
	}

	docIDs, err := source.AllDocIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list doc IDs: %w", err)
	}

	ti.mu.RLock()
	if ti.index != nil && ti.manifest != nil && ti.manifest.Matches(docIDs, tokenizer) {
		idx := ti.index
		ti.mu.RUnlock()
		return idx, nil
	}
	ti.mu.RUnlock()

	if idx, manifest := m.reopenSnapshot(uid, tokenizer); idx != nil {
		if manifest.Matches(docIDs, tokenizer) {
			m.install(ti, idx, manifest)
			return idx, nil
		}
		_ = idx.Close()
	}

	return m.rebuild(ctx, uid, ti, source, docIDs, tokenizer)
}

// install swaps a reopened snapshot into the tenant slot.
func (m *Manager) install(ti *tenantIndex, idx *Index, manifest *Manifest) {
	ti.mu.Lock()
	if ti.index != nil {
		_ = ti.index.Close()
	}
	ti.index = idx
	ti.manifest = manifest
	ti.mu.Unlock()

	m.logger.Info("lexical_snapshot_reused",
		slog.Int("chunks", manifest.ChunkCount))
}

// reopenSnapshot opens the persisted snapshot if its manifest is readable
// and its tokenizer identity matches. Reopening reuses the persisted
// segments without tokenizing.
func (m *Manager) reopenSnapshot(uid string, tokenizer string) (*Index, *Manifest) {
	dir := m.lexicalDir(uid)
	manifest, err := LoadManifest(filepath.Join(dir, manifestName))
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("lexical_manifest_unreadable",
				slog.String("uid", uid),
				slog.String("error", err.Error()))
		}
		return nil, nil
	}
	if manifest.Tokenizer != tokenizer {
		return nil, nil
	}

	idx, err := OpenIndex(filepath.Join(dir, indexDirName))
	if err != nil {
		m.logger.Warn("lexical_snapshot_corrupt",
			slog.String("uid", uid),
			slog.String("error", err.Error()))
		return nil, nil
	}
	return idx, manifest
}

// rebuild constructs a fresh snapshot under a file lock and swaps it in.
func (m *Manager) rebuild(ctx context.Context, uid string, ti *tenantIndex, source ChunkSource, docIDs []string, tokenizer string) (*Index, error) {
	dir := m.lexicalDir(uid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lexical dir: %w", err)
	}

	lock := flock.New(filepath.Join(dir, rebuildLockName))
	locked, err := lock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire rebuild lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("rebuild lock unavailable")
	}
	defer func() { _ = lock.Unlock() }()

	chunks, err := source.GetChunks(ctx, store.Filter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}

	start := time.Now()
	buildDir := filepath.Join(dir, fmt.Sprintf("%s.build-%d", indexDirName, time.Now().UnixNano()))
	building, err := NewIndex(buildDir)
	if err != nil {
		return nil, err
	}
	if err := building.Add(ctx, chunks); err != nil {
		_ = building.Close()
		_ = os.RemoveAll(buildDir)
		return nil, err
	}
	if err := building.Close(); err != nil {
		_ = os.RemoveAll(buildDir)
		return nil, fmt.Errorf("failed to close built index: %w", err)
	}

	finalDir := filepath.Join(dir, indexDirName)

	ti.mu.Lock()
	defer ti.mu.Unlock()

	if ti.index != nil {
		_ = ti.index.Close()
		ti.index = nil
	}
	if err := os.RemoveAll(finalDir); err != nil {
		_ = os.RemoveAll(buildDir)
		return nil, fmt.Errorf("failed to clear old index: %w", err)
	}
	if err := os.Rename(buildDir, finalDir); err != nil {
		_ = os.RemoveAll(buildDir)
		return nil, fmt.Errorf("failed to install index: %w", err)
	}

	manifest := NewManifest(docIDs, tokenizer)
	if err := manifest.Save(filepath.Join(dir, manifestName)); err != nil {
		return nil, err
	}

	idx, err := OpenIndex(finalDir)
	if err != nil {
		return nil, err
	}
	ti.index = idx
	ti.manifest = manifest

	m.logger.Info("lexical_index_rebuilt",
		slog.String("uid", uid),
		slog.Int("chunks", len(chunks)),
		slog.Duration("elapsed", time.Since(start)))
	return idx, nil
}

// Close releases all open tenant indexes.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ti := range m.tenants {
		ti.mu.Lock()
		if ti.index != nil {
			_ = ti.index.Close()
			ti.index = nil
		}
		ti.mu.Unlock()
	}
	return nil
}
