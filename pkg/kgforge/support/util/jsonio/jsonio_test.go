package jsonio_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgforge/kgforge/pkg/kgforge/support/util/jsonio"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.json")

	require.NoError(t, jsonio.Save(path, payload{Name: "batch_1", Count: 3}))

	var got payload
	require.NoError(t, jsonio.Load(path, &got))
	assert.Equal(t, "batch_1", got.Name)
	assert.Equal(t, 3, got.Count)
}

func TestSaveOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.json")

	require.NoError(t, jsonio.Save(path, payload{Name: "old"}))
	require.NoError(t, jsonio.Save(path, payload{Name: "new"}))

	var got payload
	require.NoError(t, jsonio.Load(path, &got))
	assert.Equal(t, "new", got.Name)

	// No temp files may survive a completed write.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoadMissingFileReturnsNotExist(t *testing.T) {
	var got payload
	err := jsonio.Load(filepath.Join(t.TempDir(), "absent.json"), &got)
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	var got payload
	assert.Error(t, jsonio.Load(path, &got))
}
