package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPageCache(t *testing.T) *SQLitePageCache {
	t.Helper()
	c, err := NewSQLitePageCache(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestPageCachePutGet(t *testing.T) {
	c := newTestPageCache(t)
	ctx := context.Background()

	page := &ParsedPage{
		Text:     "압력 게이지 점검 절차",
		Tables:   []string{"| 항목 | 주기 |"},
		Keywords: []string{"압력", "게이지"},
		Title:    "정비 매뉴얼",
	}
	require.NoError(t, c.Put(ctx, "manual.pdf", 3, page))

	got, ok, err := c.Get(ctx, "manual.pdf", 3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, page.Text, got.Text)
	assert.Equal(t, page.Tables, got.Tables)
	assert.Equal(t, page.Title, got.Title)
}

func TestPageCacheMiss(t *testing.T) {
	c := newTestPageCache(t)

	_, ok, err := c.Get(context.Background(), "manual.pdf", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPageCacheKeyedByDocAndPage(t *testing.T) {
	c := newTestPageCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "manual.pdf", 1, &ParsedPage{Text: "a"}))
	require.NoError(t, c.Put(ctx, "guide.pdf", 1, &ParsedPage{Text: "b"}))

	got, ok, err := c.Get(ctx, "guide.pdf", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", got.Text)

	_, ok, err = c.Get(ctx, "manual.pdf", 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPageCacheOverwrite(t *testing.T) {
	c := newTestPageCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "manual.pdf", 1, &ParsedPage{Text: "old"}))
	require.NoError(t, c.Put(ctx, "manual.pdf", 1, &ParsedPage{Text: "new"}))

	got, ok, err := c.Get(ctx, "manual.pdf", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", got.Text)
}

func TestPageCachePurge(t *testing.T) {
	c := newTestPageCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "manual.pdf", 1, &ParsedPage{Text: "a"}))
	require.NoError(t, c.Put(ctx, "manual.pdf", 2, &ParsedPage{Text: "b"}))

	// Nothing is older than a cutoff in the past.
	n, err := c.Purge(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = c.Purge(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok, err := c.Get(ctx, "manual.pdf", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}
