package catalog_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/content-extensions/pkg/extensions"
	"github.com/tendant/content-extensions/pkg/extensions/catalog"
	blobmemory "github.com/tendant/content-extensions/pkg/extensions/storage/memory"
	"github.com/tendant/content-extensions/pkg/extensions/store/memory"
)

const glossaryYAML = `
name: adapt-contrib-glossary
displayName: Glossary
extension: glossary
version: 1.0.0
targetAttribute: _glossary
properties:
  pluginLocations:
    type: object
    properties:
      course:
        type: object
        properties:
          title:
            type: string
            default: Glossary
      component:
        type: object
        properties:
          _isEnabled:
            type: boolean
            default: true
`

const trickleJSON = `{
  "name": "adapt-contrib-trickle",
  "extension": "trickle",
  "version": "v2.1.0",
  "targetAttribute": "_trickle",
  "properties": {
    "pluginLocations": {
      "type": "object",
      "properties": {
        "article": {
          "type": "object",
          "properties": {
            "_isEnabled": { "type": "boolean", "default": false },
            "_steps": { "type": "array" }
          }
        }
      }
    }
  }
}`

func put(t *testing.T, blobs *blobmemory.Backend, key, content string) {
	t.Helper()
	require.NoError(t, blobs.Put(context.Background(), key, strings.NewReader(content)))
}

func TestCatalog_Sync(t *testing.T) {
	ctx := context.Background()
	blobs := blobmemory.New()
	store := memory.New()
	cat := catalog.New(blobs, store, catalog.WithPrefix("manifests/"))

	put(t, blobs, "manifests/glossary.yaml", glossaryYAML)
	put(t, blobs, "manifests/trickle.json", trickleJSON)
	put(t, blobs, "manifests/README.md", "not a manifest")
	put(t, blobs, "manifests/broken.yml", "name: broken\nproperties:\n  pluginLocations: {}\n")
	put(t, blobs, "elsewhere/ignored.json", trickleJSON)

	report, err := cat.Sync(ctx)
	require.NoError(t, err)
	require.Len(t, report.Installed, 2)
	assert.Equal(t, "adapt-contrib-glossary", report.Installed[0].Name)
	assert.Equal(t, "adapt-contrib-trickle", report.Installed[1].Name)
	assert.Equal(t, "v2.1.0", report.Installed[1].Version)
	require.Len(t, report.Rejected, 1)
	assert.Equal(t, "manifests/broken.yml", report.Rejected[0].Key)
	assert.NotEmpty(t, report.Rejected[0].Issues)

	descriptors, err := extensions.NewStoreDescriptorSource(store).All(ctx)
	require.NoError(t, err)
	require.Len(t, descriptors, 2)

	var glossary, trickle *extensions.Descriptor
	for _, d := range descriptors {
		switch d.Name {
		case "adapt-contrib-glossary":
			glossary = d
		case "adapt-contrib-trickle":
			trickle = d
		}
	}
	require.NotNil(t, glossary)
	require.NotNil(t, trickle)
	assert.Equal(t, "v2.1.0", trickle.Version)
	assert.Equal(t, "glossary", glossary.Key())
	assert.Equal(t, "_glossary", glossary.Attribute())
	require.Len(t, glossary.Locations, 2)
	assert.Equal(t, "course", glossary.Locations[0].Key)
	assert.Equal(t, "component", glossary.Locations[1].Key)

	t.Run("SecondSyncIsUnchanged", func(t *testing.T) {
		report, err := cat.Sync(ctx)
		require.NoError(t, err)
		assert.Empty(t, report.Installed)
		assert.Empty(t, report.Updated)
		assert.Len(t, report.Unchanged, 2)
	})

	t.Run("GreaterVersionUpdatesInPlace", func(t *testing.T) {
		put(t, blobs, "manifests/glossary.yaml", strings.Replace(glossaryYAML, "version: 1.0.0", "version: 1.1.0", 1))

		report, err := cat.Sync(ctx)
		require.NoError(t, err)
		require.Len(t, report.Updated, 1)
		assert.Equal(t, glossary.ID, report.Updated[0].ID)

		docs, err := store.Retrieve(ctx, extensions.TypeExtensionType, extensions.Criteria{"name": "adapt-contrib-glossary"})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "1.1.0", docs[0]["version"])
	})

	t.Run("LowerVersionIsIgnored", func(t *testing.T) {
		put(t, blobs, "manifests/glossary.yaml", strings.Replace(glossaryYAML, "version: 1.0.0", "version: 0.9.0", 1))

		result, err := cat.Install(ctx, []byte(strings.Replace(glossaryYAML, "version: 1.0.0", "version: 0.9.0", 1)))
		require.NoError(t, err)
		assert.Equal(t, catalog.OutcomeUnchanged, result.Outcome)
	})
}

func TestParseManifest(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		m, err := catalog.ParseManifest([]byte(glossaryYAML))
		require.NoError(t, err)
		assert.Equal(t, "adapt-contrib-glossary", m.Name)
		assert.Equal(t, "1.0.0", m.Version.String())
		assert.Equal(t, []string{"course", "component"}, m.LocationOrder)

		doc := m.Document("ext-1")
		assert.Equal(t, "ext-1", doc.ID())
		assert.Equal(t, []interface{}{"course", "component"}, doc[extensions.FieldLocationOrder])
	})

	t.Run("UnknownLocation", func(t *testing.T) {
		_, err := catalog.ParseManifest([]byte(strings.Replace(glossaryYAML, "      component:", "      sidebar:", 1)))
		var invalid *catalog.InvalidManifestError
		require.ErrorAs(t, err, &invalid)
	})

	t.Run("BadVersion", func(t *testing.T) {
		_, err := catalog.ParseManifest([]byte(strings.Replace(glossaryYAML, "version: 1.0.0", "version: latest", 1)))
		var invalid *catalog.InvalidManifestError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "/version", invalid.Issues[0].Path)
	})

	t.Run("NotAnObject", func(t *testing.T) {
		_, err := catalog.ParseManifest([]byte("- a\n- b\n"))
		var invalid *catalog.InvalidManifestError
		require.ErrorAs(t, err, &invalid)
	})
}

func TestCatalog_LocationSchemaWarnings(t *testing.T) {
	manifest := strings.Replace(glossaryYAML, "            type: boolean", "            type: 5", 1)
	cat := catalog.New(blobmemory.New(), memory.New())

	result, err := cat.Install(context.Background(), []byte(manifest))
	require.NoError(t, err)
	assert.Equal(t, catalog.OutcomeInstalled, result.Outcome)
	assert.NotEmpty(t, result.Warnings)
}
