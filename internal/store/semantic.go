package store

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	askerr "github.com/askdoc/askdoc/internal/errors"
)

// SemanticStore implements SemanticIndex over an HNSW graph (coder/hnsw)
// with chunk metadata and embeddings persisted in SQLite. The SQLite corpus
// is the source of truth; the graph is rebuilt from stored embeddings when
// a tenant store is reopened.
type SemanticStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	chunks *ChunkDB

	// docEmbedder embeds chunk content on Add; queryEmbedder embeds the
	// question on Search. Providers distinguish the two with task types.
	docEmbedder   Embedder
	queryEmbedder Embedder

	// ID mapping (string <-> uint64). Deletions are lazy: the node stays in
	// the graph but loses its mapping and is skipped in results.
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	closed bool
}

var _ SemanticIndex = (*SemanticStore)(nil)

// NewSemanticStore opens a tenant semantic store backed by the chunk
// database at dbPath (empty for in-memory). The HNSW graph is rebuilt from
// persisted embeddings. A nil queryEmbedder falls back to docEmbedder.
func NewSemanticStore(dbPath string, docEmbedder, queryEmbedder Embedder) (*SemanticStore, error) {
	chunks, err := NewChunkDB(dbPath)
	if err != nil {
		return nil, askerr.StoreUnavailableError("open chunk db", err)
	}
	if queryEmbedder == nil {
		queryEmbedder = docEmbedder
	}

	s := &SemanticStore{
		graph:         newGraph(),
		chunks:        chunks,
		docEmbedder:   docEmbedder,
		queryEmbedder: queryEmbedder,
		idMap:         make(map[string]uint64),
		keyMap:        make(map[uint64]string),
	}

	if err := s.rebuildGraph(context.Background()); err != nil {
		chunks.Close()
		return nil, err
	}
	return s, nil
}

// Chunks exposes the underlying chunk database. The lexical index manager
// reads the corpus through it; semantic state stays behind this store.
func (s *SemanticStore) Chunks() *ChunkDB {
	return s.chunks
}

func newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 64
	g.Ml = 0.25
	return g
}

// rebuildGraph loads all persisted embeddings into a fresh graph.
func (s *SemanticStore) rebuildGraph(ctx context.Context) error {
	vectors, err := s.chunks.AllEmbeddings(ctx)
	if err != nil {
		return askerr.StoreUnavailableError("load embeddings", err)
	}

	ids := make([]string, 0, len(vectors))
	for id := range vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		key := s.nextKey
		s.nextKey++
		vec := normalized(vectors[id])
		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
	}

	if len(ids) > 0 {
		slog.Debug("semantic_graph_rebuilt", slog.Int("vectors", len(ids)))
	}
	return nil
}

// Add inserts chunks, computing their embeddings. Existing DocIDs are replaced.
func (s *SemanticStore) Add(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	vectors := make([][]float32, len(chunks))
	for i, ch := range chunks {
		vec, err := s.docEmbedder.Embed(ctx, ch.Content)
		if err != nil {
			return askerr.Wrap(askerr.ErrCodeEmbeddingFailed, err)
		}
		vectors[i] = vec
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("semantic store is closed")
	}

	if err := s.chunks.SaveChunks(ctx, chunks, vectors); err != nil {
		return askerr.StoreUnavailableError("save chunks", err)
	}

	for i, ch := range chunks {
		if oldKey, exists := s.idMap[ch.DocID]; exists {
			delete(s.keyMap, oldKey)
			delete(s.idMap, ch.DocID)
		}
		key := s.nextKey
		s.nextKey++
		s.graph.Add(hnsw.MakeNode(key, normalized(vectors[i])))
		s.idMap[ch.DocID] = key
		s.keyMap[key] = ch.DocID
	}

	return nil
}

// Search returns up to k chunks ranked by embedding similarity.
// A non-zero filter is pushed down: the candidate set is restricted before
// ranking, so filtered queries may use a wider k without extra cost.
func (s *SemanticStore) Search(ctx context.Context, query string, k int, filter Filter) ([]*Chunk, error) {
	if k <= 0 {
		return []*Chunk{}, nil
	}

	queryVec, err := s.queryEmbedder.Embed(ctx, query)
	if err != nil {
		return nil, askerr.Wrap(askerr.ErrCodeEmbeddingFailed, err)
	}
	queryVec = normalized(queryVec)

	if !filter.IsZero() {
		return s.searchFiltered(ctx, queryVec, k, filter)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("semantic store is closed")
	}
	if s.graph.Len() == 0 {
		return []*Chunk{}, nil
	}

	// Over-fetch to compensate for lazily deleted nodes.
	nodes := s.graph.Search(queryVec, k+len(s.keyMap)/8+1)

	ids := make([]string, 0, k)
	for _, node := range nodes {
		if id, ok := s.keyMap[node.Key]; ok {
			ids = append(ids, id)
			if len(ids) == k {
				break
			}
		}
	}

	return s.chunks.GetChunksByID(ctx, ids)
}

// searchFiltered ranks the filtered candidate set exhaustively by cosine
// similarity. Filtered sets (one document or one page) are small enough
// that brute force beats approximate graph search plus post-filtering.
func (s *SemanticStore) searchFiltered(ctx context.Context, queryVec []float32, k int, filter Filter) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("semantic store is closed")
	}

	candidates, err := s.chunks.GetChunks(ctx, filter)
	if err != nil {
		return nil, askerr.StoreUnavailableError("load filtered chunks", err)
	}
	if len(candidates) == 0 {
		return []*Chunk{}, nil
	}

	vectors, err := s.chunks.AllEmbeddings(ctx)
	if err != nil {
		return nil, askerr.StoreUnavailableError("load embeddings", err)
	}

	type scored struct {
		chunk *Chunk
		sim   float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, ch := range candidates {
		vec, ok := vectors[ch.DocID]
		if !ok {
			continue
		}
		ranked = append(ranked, scored{chunk: ch, sim: cosineSimilarity(queryVec, normalized(vec))})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].sim != ranked[j].sim {
			return ranked[i].sim > ranked[j].sim
		}
		return ranked[i].chunk.DocID < ranked[j].chunk.DocID
	})

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	result := make([]*Chunk, len(ranked))
	for i, r := range ranked {
		result[i] = r.chunk
	}
	return result, nil
}

// Get returns chunks matching the filter exactly, ordered by DocID.
func (s *SemanticStore) Get(ctx context.Context, filter Filter) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks, err := s.chunks.GetChunks(ctx, filter)
	if err != nil {
		return nil, askerr.StoreUnavailableError("get chunks", err)
	}
	return chunks, nil
}

// AllDocIDs returns the corpus doc_id set.
func (s *SemanticStore) AllDocIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chunks.AllDocIDs(ctx)
}

// ListDocuments returns the distinct document names in the corpus.
func (s *SemanticStore) ListDocuments(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chunks.ListDocuments(ctx)
}

// DeleteDocument removes all chunks of a document from SQLite and the graph.
func (s *SemanticStore) DeleteDocument(ctx context.Context, docName string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.chunks.DeleteDocument(ctx, docName)
	if err != nil {
		return 0, askerr.StoreUnavailableError("delete document", err)
	}
	for _, id := range ids {
		if key, ok := s.idMap[id]; ok {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}
	return len(ids), nil
}

// Count returns the number of chunks in the corpus.
func (s *SemanticStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chunks.Count(ctx)
}

// Close closes the underlying database.
func (s *SemanticStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.chunks.Close()
}

// normalized returns a unit-length copy of v (zero vectors pass through).
func normalized(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}

// cosineSimilarity computes the dot product of two unit vectors.
func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
