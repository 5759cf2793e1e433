package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-extensions/pkg/extensions"
	"github.com/tendant/content-extensions/pkg/extensions/store/memory"
)

func TestMemoryStore_DocumentOperations(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, extensions.TypeComponent, extensions.Document{
		"_id": "c2", "_courseId": "course-1", "title": "Second",
	}))
	require.NoError(t, store.Create(ctx, extensions.TypeComponent, extensions.Document{
		"_id": "c1", "_courseId": "course-1", "title": "First",
		"_extensions": map[string]interface{}{"_other": map[string]interface{}{"x": 1}},
	}))
	require.NoError(t, store.Create(ctx, extensions.TypeComponent, extensions.Document{
		"_id": "c3", "_courseId": "course-2",
	}))

	t.Run("Create_Duplicate", func(t *testing.T) {
		err := store.Create(ctx, extensions.TypeComponent, extensions.Document{"_id": "c1"})
		assert.Error(t, err)
	})

	t.Run("Create_MissingID", func(t *testing.T) {
		err := store.Create(ctx, extensions.TypeComponent, extensions.Document{"title": "x"})
		assert.Error(t, err)
	})

	t.Run("Retrieve_Equality", func(t *testing.T) {
		docs, err := store.Retrieve(ctx, extensions.TypeComponent, extensions.Criteria{"_courseId": "course-1"})
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "c1", docs[0].ID())
		assert.Equal(t, "c2", docs[1].ID())
	})

	t.Run("Retrieve_In", func(t *testing.T) {
		docs, err := store.Retrieve(ctx, extensions.TypeComponent, extensions.Criteria{"_id": extensions.In{"c1", "c3", "missing"}})
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "c1", docs[0].ID())
		assert.Equal(t, "c3", docs[1].ID())
	})

	t.Run("Retrieve_Projection", func(t *testing.T) {
		docs, err := store.Retrieve(ctx, extensions.TypeComponent, extensions.Criteria{"_id": "c1"},
			"_id", "_extensions", "_enabledExtensions")
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, extensions.Document{
			"_id":         "c1",
			"_extensions": map[string]interface{}{"_other": map[string]interface{}{"x": 1}},
		}, docs[0])
	})

	t.Run("Retrieve_ReturnsCopies", func(t *testing.T) {
		docs, err := store.Retrieve(ctx, extensions.TypeComponent, extensions.Criteria{"_id": "c1"})
		require.NoError(t, err)
		docs[0]["_extensions"].(map[string]interface{})["_other"] = "changed"

		stored, ok := store.Get(extensions.TypeComponent, "c1")
		require.True(t, ok)
		assert.Equal(t, map[string]interface{}{"x": 1}, stored["_extensions"].(map[string]interface{})["_other"])
	})

	t.Run("Update_Delta", func(t *testing.T) {
		err := store.Update(ctx, extensions.TypeComponent, extensions.Criteria{"_id": "c2"}, extensions.Document{
			"_extensions": map[string]interface{}{"_new": map[string]interface{}{}},
		})
		require.NoError(t, err)

		stored, _ := store.Get(extensions.TypeComponent, "c2")
		assert.Equal(t, "Second", stored["title"])
		assert.Equal(t, map[string]interface{}{"_new": map[string]interface{}{}}, stored["_extensions"])
	})

	t.Run("Update_NoMatch", func(t *testing.T) {
		err := store.Update(ctx, extensions.TypeComponent, extensions.Criteria{"_id": "nope"}, extensions.Document{"a": 1})
		assert.ErrorIs(t, err, extensions.ErrDocumentNotFound)
	})

	t.Run("Retrieve_UnknownType", func(t *testing.T) {
		docs, err := store.Retrieve(ctx, "unknown", extensions.Criteria{})
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := store.Retrieve(cctx, extensions.TypeComponent, extensions.Criteria{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
