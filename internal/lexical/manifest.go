package lexical

import (
	"encoding/json"
	"os"
	"sort"
	"time"

	askerr "github.com/askdoc/askdoc/internal/errors"
)

// Manifest records what an index snapshot was built from. A snapshot is
// reusable only when its doc ID set matches the chunk store exactly and it
// was built with the same tokenizer the process would select now.
type Manifest struct {
	DocIDs     []string  `json:"doc_ids"`
	Tokenizer  string    `json:"tokenizer"`
	ChunkCount int       `json:"chunk_count"`
	BuiltAt    time.Time `json:"built_at"`
}

// NewManifest builds a manifest for the given doc IDs and tokenizer identity.
func NewManifest(docIDs []string, tokenizer string) *Manifest {
	sorted := make([]string, len(docIDs))
	copy(sorted, docIDs)
	sort.Strings(sorted)
	return &Manifest{
		DocIDs:     sorted,
		Tokenizer:  tokenizer,
		ChunkCount: len(sorted),
		BuiltAt:    time.Now().UTC(),
	}
}

// Matches reports whether the snapshot covers exactly the given doc IDs
// with the given tokenizer. Order of docIDs does not matter.
func (m *Manifest) Matches(docIDs []string, tokenizer string) bool {
	if m.Tokenizer != tokenizer || len(m.DocIDs) != len(docIDs) {
		return false
	}
	sorted := make([]string, len(docIDs))
	copy(sorted, docIDs)
	sort.Strings(sorted)
	for i, id := range sorted {
		if m.DocIDs[i] != id {
			return false
		}
	}
	return true
}

// Save writes the manifest atomically next to the index directory.
func (m *Manifest) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return askerr.New(askerr.ErrCodeSnapshotWrite, "failed to encode manifest", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return askerr.New(askerr.ErrCodeSnapshotWrite, "failed to write manifest", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return askerr.New(askerr.ErrCodeSnapshotWrite, "failed to replace manifest", err)
	}
	return nil
}

// LoadManifest reads a manifest from disk. A missing or corrupt file
// returns an error so callers fall back to a rebuild.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, askerr.CorruptIndexError(path, err)
	}
	return &m, nil
}
