package local_test

import (
	"context"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storagelocal "github.com/kgforge/kgforge/pkg/kgforge/adapter/storage/local"
)

func TestUploadDownloadRoundTrip(t *testing.T) {
	adapter, err := storagelocal.NewLocalAdapter(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, adapter.Upload(ctx, "execution_1/batch_1/requests.jsonl", strings.NewReader("line one\n")))

	reader, err := adapter.Download(ctx, "execution_1/batch_1/requests.jsonl")
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "line one\n", string(data))
}

func TestUploadOverwritesExistingObject(t *testing.T) {
	adapter, err := storagelocal.NewLocalAdapter(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, adapter.Upload(ctx, "a.txt", strings.NewReader("first")))
	require.NoError(t, adapter.Upload(ctx, "a.txt", strings.NewReader("second")))

	reader, err := adapter.Download(ctx, "a.txt")
	require.NoError(t, err)
	defer reader.Close()
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestPathEscapesAreRejected(t *testing.T) {
	adapter, err := storagelocal.NewLocalAdapter(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, name := range []string{"../outside.txt", "a/../../outside.txt", "/etc/passwd"} {
		err := adapter.Upload(ctx, name, strings.NewReader("x"))
		assert.Error(t, err, name)

		_, err = adapter.Download(ctx, name)
		assert.Error(t, err, name)
	}
}

func TestListObjectsReportsRelativeSlashNames(t *testing.T) {
	adapter, err := storagelocal.NewLocalAdapter(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, name := range []string{
		"execution_1/batch_1/results/result_1.json",
		"execution_1/batch_1/results/result_2.json",
		"execution_1/batch_2/requests.jsonl",
	} {
		require.NoError(t, adapter.Upload(ctx, name, strings.NewReader("{}")))
	}

	var listed []string
	err = adapter.ListObjects(ctx, "execution_1/batch_1/results", func(objectName string) error {
		listed = append(listed, objectName)
		return nil
	})
	require.NoError(t, err)

	sort.Strings(listed)
	assert.Equal(t, []string{
		"execution_1/batch_1/results/result_1.json",
		"execution_1/batch_1/results/result_2.json",
	}, listed)
}

func TestListObjectsOnMissingPrefixIsEmpty(t *testing.T) {
	adapter, err := storagelocal.NewLocalAdapter(t.TempDir())
	require.NoError(t, err)

	called := false
	err = adapter.ListObjects(context.Background(), "absent", func(string) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestDeleteObjectIsIdempotent(t *testing.T) {
	adapter, err := storagelocal.NewLocalAdapter(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, adapter.Upload(ctx, "a.txt", strings.NewReader("x")))
	require.NoError(t, adapter.DeleteObject(ctx, "a.txt"))
	require.NoError(t, adapter.DeleteObject(ctx, "a.txt"))

	_, err = adapter.Download(ctx, "a.txt")
	assert.Error(t, err)
}

func TestNewLocalAdapterRequiresBaseDir(t *testing.T) {
	_, err := storagelocal.NewLocalAdapter("")
	assert.Error(t, err)
}
