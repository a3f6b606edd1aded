package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdoc/askdoc/internal/config"
	"github.com/askdoc/askdoc/internal/embed"
	"github.com/askdoc/askdoc/internal/lexical"
	"github.com/askdoc/askdoc/internal/store"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.NewConfig()
	cfg.DataDir = t.TempDir()

	manager := lexical.NewManager(cfg.TenantDir, nil)
	planner := NewPlanner(nil, 16, nil)
	engine := NewEngine(cfg, manager, planner, embed.NewStaticEmbedder(), nil, nil)
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func engineChunk(docName string, page, i int, content string) *store.Chunk {
	return &store.Chunk{
		DocID:     store.ChunkID(docName, page, i),
		DocName:   docName,
		Page:      page,
		ChunkType: store.ChunkTypeText,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

func TestEngineQueryEndToEnd(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	tenant, err := engine.Tenant("u1")
	require.NoError(t, err)
	require.NoError(t, tenant.Add(ctx, []*store.Chunk{
		engineChunk("manual.pdf", 1, 0, "hydraulic pump installation procedure"),
		engineChunk("manual.pdf", 2, 0, "hydraulic pump maintenance schedule"),
		engineChunk("manual.pdf", 3, 0, "electrical wiring diagram overview"),
	}))
	require.NoError(t, engine.Refresh(ctx, "u1"))

	result, err := engine.Query(ctx, "u1", "hydraulic pump installation", nil, "")
	require.NoError(t, err)
	require.NotEmpty(t, result.Chunks)
	assert.Equal(t, store.ChunkID("manual.pdf", 1, 0), result.Chunks[0].DocID)
}

func TestEngineQueryTenantIsolation(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	u1, err := engine.Tenant("u1")
	require.NoError(t, err)
	require.NoError(t, u1.Add(ctx, []*store.Chunk{
		engineChunk("manual.pdf", 1, 0, "compressor startup sequence"),
	}))
	require.NoError(t, engine.Refresh(ctx, "u1"))

	u2, err := engine.Tenant("u2")
	require.NoError(t, err)
	require.NoError(t, u2.Add(ctx, []*store.Chunk{
		engineChunk("other.pdf", 1, 0, "boiler shutdown checklist"),
	}))
	require.NoError(t, engine.Refresh(ctx, "u2"))

	result, err := engine.Query(ctx, "u2", "compressor startup", nil, "")
	require.NoError(t, err)
	for _, c := range result.Chunks {
		assert.Equal(t, "other.pdf", c.DocName, "u2 must never see u1 chunks")
	}
}

func TestEngineQueryReportsPlan(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	tenant, err := engine.Tenant("u1")
	require.NoError(t, err)
	require.NoError(t, tenant.Add(ctx, []*store.Chunk{
		engineChunk("manual.pdf", 12, 0, "error code E501 indicates overheating"),
	}))
	require.NoError(t, engine.Refresh(ctx, "u1"))

	result, err := engine.Query(ctx, "u1", "what does E501 on p. 12 mean", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "E501", result.RefinedQuery)
	assert.Equal(t, 12, result.PageFilter)
}
