package presets

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/content-extensions/internal/logger"
	"github.com/tendant/content-extensions/pkg/extensions"
)

func TestNewTesting(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		env := NewTesting(t)
		types, err := env.Service.ListExtensionTypes(context.Background())
		require.NoError(t, err)
		assert.Empty(t, types)
	})

	t.Run("fixtures", func(t *testing.T) {
		ctx := context.Background()
		env := NewTesting(t, WithTestFixtures())

		types, err := env.Service.ListExtensionTypes(ctx)
		require.NoError(t, err)
		require.Len(t, types, 1)
		assert.Equal(t, "pageLevelProgress", types[0].Key())

		require.NoError(t, env.Service.Enable(ctx, FixtureCourseID, []string{types[0].ID}))

		component, ok := env.Store.Get(extensions.TypeComponent, "component-2")
		require.True(t, ok)
		assert.Equal(t, map[string]interface{}{
			"_isEnabled":                    true,
			"_isCompletionIndicatorEnabled": false,
		}, component.Extensions()["_pageLevelProgress"])

		page, err := env.Service.CreateContent(ctx, extensions.TypeContentObject, extensions.Document{"_courseId": FixtureCourseID})
		require.NoError(t, err)
		assert.Equal(t, map[string]interface{}{"_isEnabled": true}, page.Extensions()["_pageLevelProgress"])
	})
}

func TestNewDevelopment(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "manifests")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plp.yaml"), []byte(FixtureManifest), 0o644))

	env, cleanup, err := NewDevelopment(WithDevManifests(dir), WithDevLogger(logger.NewNop()))
	require.NoError(t, err)

	types, err := env.Service.ListExtensionTypes(context.Background())
	require.NoError(t, err)
	require.Len(t, types, 1)
	assert.Equal(t, []string{"course", "contentobject", "component"}, locationKeys(types[0]))

	// Manifests added later are picked up by the next sync.
	require.NoError(t, env.Manifests.Put(context.Background(), "second.yaml",
		strings.NewReader(strings.Replace(FixtureManifest, "adapt-contrib-pageLevelProgress", "adapt-contrib-other", 1))))
	report, err := env.Catalog.Sync(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Installed, 1)
	assert.Len(t, report.Unchanged, 1)

	cleanup()
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func locationKeys(d *extensions.Descriptor) []string {
	keys := make([]string, 0, len(d.Locations))
	for _, loc := range d.Locations {
		keys = append(keys, loc.Key)
	}
	return keys
}
