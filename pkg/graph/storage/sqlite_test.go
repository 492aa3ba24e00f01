package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphweave/graphweave/pkg/graph"
)

func newTestSQLiteStore(t *testing.T) *SQLiteRelationalStore {
	t.Helper()
	store, err := NewSQLiteRelationalStore(filepath.Join(t.TempDir(), "documents.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLitePutAndGetDocument(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	doc := graph.Document{ID: uuid.New(), RawText: "the raw text", SourcePath: "/data/report.pdf", Status: "processed"}
	require.NoError(t, store.PutDocument(ctx, doc))

	got, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc, got)
}

func TestSQLitePutDocumentUpserts(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	doc := graph.Document{ID: uuid.New(), RawText: "first pass", SourcePath: "/data/a.txt", Status: "processed"}
	require.NoError(t, store.PutDocument(ctx, doc))

	doc.RawText = "second pass"
	doc.Status = "ingested"
	require.NoError(t, store.PutDocument(ctx, doc))

	got, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "second pass", got.RawText)
	assert.Equal(t, "ingested", got.Status)

	docs, err := store.Search(ctx, nil, 0)
	require.NoError(t, err)
	assert.Len(t, docs, 1, "reprocessing a document must not duplicate its row")
}

func TestSQLiteGetDocumentMissing(t *testing.T) {
	store := newTestSQLiteStore(t)

	_, err := store.GetDocument(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteUpdateStatus(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	doc := graph.Document{ID: uuid.New(), RawText: "text", SourcePath: "/data/a.txt", Status: "processed"}
	require.NoError(t, store.PutDocument(ctx, doc))

	require.NoError(t, store.UpdateStatus(ctx, doc.ID, "ingested"))
	got, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "ingested", got.Status)

	assert.ErrorIs(t, store.UpdateStatus(ctx, uuid.New(), "ingested"), ErrNotFound)
}

func TestSQLiteSearch(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	first := graph.Document{ID: uuid.New(), RawText: "a", SourcePath: "/data/a.txt", Status: "ingested"}
	second := graph.Document{ID: uuid.New(), RawText: "b", SourcePath: "/data/b.txt", Status: "processed"}
	third := graph.Document{ID: uuid.New(), RawText: "c", SourcePath: "/data/c.txt", Status: "ingested"}
	for _, doc := range []graph.Document{first, second, third} {
		require.NoError(t, store.PutDocument(ctx, doc))
	}

	t.Run("by status in insertion order", func(t *testing.T) {
		docs, err := store.Search(ctx, map[string]string{"status": "ingested"}, 0)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, first.ID, docs[0].ID)
		assert.Equal(t, third.ID, docs[1].ID)
	})

	t.Run("by source path", func(t *testing.T) {
		docs, err := store.Search(ctx, map[string]string{"source_path": "/data/b.txt"}, 0)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, second.ID, docs[0].ID)
	})

	t.Run("combined filters", func(t *testing.T) {
		docs, err := store.Search(ctx, map[string]string{"status": "ingested", "source_path": "/data/c.txt"}, 0)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, third.ID, docs[0].ID)
	})

	t.Run("limit", func(t *testing.T) {
		docs, err := store.Search(ctx, nil, 2)
		require.NoError(t, err)
		assert.Len(t, docs, 2)
	})

	t.Run("unknown filter key is rejected", func(t *testing.T) {
		_, err := store.Search(ctx, map[string]string{"owner": "nobody"}, 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported filter field")
	})
}
