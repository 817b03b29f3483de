package vectorstore

import (
	"context"
	"hash/fnv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubEmbedder produces deterministic pseudo-embeddings from text hashes
// so similarity search is stable without a real model.
type stubEmbedder struct {
	dim int
}

func (e *stubEmbedder) embed(text string) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vec := make([]float32, e.dim)
	for i := range vec {
		seed = seed*1664525 + 1013904223
		vec[i] = float32(seed%1000)/1000.0 - 0.5
	}
	return vec
}

func (e *stubEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *stubEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func newTestStore(t *testing.T) *ChromemStore {
	t.Helper()
	store, err := NewChromemStore(ChromemConfig{
		Path:       t.TempDir(),
		Collection: "tutorials_test",
		VectorSize: 16,
	}, &stubEmbedder{dim: 16}, zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestChromemAddAndSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	docs := []Document{
		{
			ID:      "tut-1",
			Content: "replace laptop power supply no power led off",
			Metadata: map[string]string{
				"category": "laptop",
			},
		},
		{
			ID:      "tut-2",
			Content: "fix cracked phone screen replacement",
			Metadata: map[string]string{
				"category": "phone",
			},
		},
	}

	ids, err := store.AddDocuments(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, []string{"tut-1", "tut-2"}, ids)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	results, err := store.Search(ctx, "laptop power supply", 10, map[string]string{"category": "laptop"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "tut-1", results[0].ID)
	assert.GreaterOrEqual(t, results[0].Score, 0.0)
	assert.Equal(t, "laptop", results[0].Metadata["category"])
}

func TestChromemEmptyBatchRejected(t *testing.T) {
	store := newTestStore(t)
	_, err := store.AddDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyDocuments)
}

func TestChromemMissingIDRejected(t *testing.T) {
	store := newTestStore(t)
	_, err := store.AddDocuments(context.Background(), []Document{{Content: "x"}})
	assert.ErrorContains(t, err, "no ID")
}

func TestChromemSearchValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Search(ctx, "", 5, nil)
	assert.ErrorContains(t, err, "query cannot be empty")

	_, err = store.Search(ctx, "query", 0, nil)
	assert.ErrorContains(t, err, "k must be positive")
}

func TestChromemDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddDocuments(ctx, []Document{
		{ID: "tut-1", Content: "a", Metadata: map[string]string{"category": "laptop"}},
	})
	require.NoError(t, err)

	require.NoError(t, store.DeleteDocuments(ctx, []string{"tut-1"}))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestFactoryRejectsUnknownProvider(t *testing.T) {
	_, err := New(Options{Provider: "weaviate"}, &stubEmbedder{dim: 4}, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDeterministicUUIDStable(t *testing.T) {
	assert.Equal(t, deterministicUUID("tut-1"), deterministicUUID("tut-1"))
	assert.NotEqual(t, deterministicUUID("tut-1"), deterministicUUID("tut-2"))
}
