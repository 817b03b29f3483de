package feedback

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// storeUnderTest runs the same assertions against both implementations.
func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "feedback.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestAppendAndAggregate(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.Append(ctx, Record{
				SessionID: "s1", TutorialID: "tut-1", Resolved: true, Clarity: 5, Accuracy: 5,
			}))
			require.NoError(t, store.Append(ctx, Record{
				SessionID: "s2", TutorialID: "tut-1", Resolved: false, Clarity: 3, Accuracy: 1,
			}))
			require.NoError(t, store.Append(ctx, Record{
				SessionID: "s3", TutorialID: "tut-2", Resolved: true, Clarity: 4, Accuracy: 4,
			}))

			aggs, err := store.Aggregates(ctx, []string{"tut-1", "tut-2", "tut-absent"})
			require.NoError(t, err)
			require.Len(t, aggs, 2)

			t1 := aggs["tut-1"]
			assert.Equal(t, 2, t1.Count)
			assert.InDelta(t, 0.5, t1.ResolutionRate, 1e-9)
			// (10/10 + 4/10) / 2 = 0.7
			assert.InDelta(t, 0.7, t1.AvgRating, 1e-9)

			t2 := aggs["tut-2"]
			assert.Equal(t, 1, t2.Count)
			assert.InDelta(t, 1.0, t2.ResolutionRate, 1e-9)
			assert.InDelta(t, 0.8, t2.AvgRating, 1e-9)

			assert.NotContains(t, aggs, "tut-absent")
		})
	}
}

func TestAppendValidation(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			err := store.Append(ctx, Record{TutorialID: "tut-1", Clarity: 3, Accuracy: 3})
			assert.ErrorIs(t, err, ErrInvalidRecord)

			err = store.Append(ctx, Record{SessionID: "s1", TutorialID: "tut-1", Clarity: 0, Accuracy: 3})
			assert.ErrorIs(t, err, ErrInvalidRecord)

			err = store.Append(ctx, Record{SessionID: "s1", TutorialID: "tut-1", Clarity: 3, Accuracy: 6})
			assert.ErrorIs(t, err, ErrInvalidRecord)
		})
	}
}

func TestList(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.Append(ctx, Record{
				SessionID: "s1", TutorialID: "tut-1", Resolved: true, Clarity: 5, Accuracy: 5,
			}))
			require.NoError(t, store.Append(ctx, Record{
				SessionID: "s2", TutorialID: "tut-2", Resolved: false, Clarity: 2, Accuracy: 2,
			}))

			records, err := store.List(ctx)
			require.NoError(t, err)
			require.Len(t, records, 2)
			assert.Equal(t, "s1", records[0].SessionID)
			assert.Equal(t, "s2", records[1].SessionID)
			assert.False(t, records[1].CreatedAt.IsZero())
		})
	}
}

func TestAggregatesEmptyInput(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			aggs, err := store.Aggregates(context.Background(), nil)
			require.NoError(t, err)
			assert.Empty(t, aggs)
		})
	}
}
