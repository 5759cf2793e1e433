package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-extensions/pkg/extensions"
)

func TestFSBackend_BasicOps(t *testing.T) {
	tmp := t.TempDir()
	backend, err := New(Config{BaseDir: tmp})
	require.NoError(t, err)

	ctx := context.Background()
	key := "manifests/vendor/assessment.yaml"

	require.NoError(t, backend.Put(ctx, key, strings.NewReader("name: assessment")))
	require.NoError(t, backend.Put(ctx, "manifests/glossary.json", strings.NewReader(`{}`)))
	require.NoError(t, backend.Put(ctx, "readme.txt", strings.NewReader("x")))

	rc, err := backend.Get(ctx, key)
	require.NoError(t, err)
	got, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "name: assessment", string(got))

	keys, err := backend.List(ctx, "manifests/")
	require.NoError(t, err)
	assert.Equal(t, []string{"manifests/glossary.json", "manifests/vendor/assessment.yaml"}, keys)

	require.NoError(t, backend.Delete(ctx, key))
	_, err = os.Stat(filepath.Join(tmp, "manifests", "vendor"))
	assert.True(t, os.IsNotExist(err), "empty directory should be pruned")

	_, err = backend.Get(ctx, key)
	assert.ErrorIs(t, err, extensions.ErrObjectNotFound)
	assert.ErrorIs(t, backend.Delete(ctx, key), extensions.ErrObjectNotFound)
}

func TestFSBackend_RejectsEscapingKeys(t *testing.T) {
	backend, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	err = backend.Put(context.Background(), "../outside.json", strings.NewReader("{}"))
	assert.Error(t, err)
}

func TestFSBackend_RequiresBaseDir(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
