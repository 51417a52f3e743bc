package itemsource_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgforge/kgforge/pkg/kgforge/itemsource"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestItemsReadsIDAndTextColumns(t *testing.T) {
	path := writeCSV(t, "id,title,text\ndoc-1,First,Acme Corp hired Jane Smith.\ndoc-2,Second,Globex acquired Initech.\n")
	source := itemsource.NewCSVSource(path, "id", "text")

	items, err := source.Items(context.Background())
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, "doc-1", items[0].ID)
	assert.Equal(t, "Acme Corp hired Jane Smith.", items[0].Text)
	assert.Equal(t, "doc-2", items[1].ID)
}

func TestItemsWithoutIDColumn(t *testing.T) {
	path := writeCSV(t, "text\nfirst document\nsecond document\n")
	source := itemsource.NewCSVSource(path, "id", "text")

	items, err := source.Items(context.Background())
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Empty(t, items[0].ID)
	assert.Equal(t, "first document", items[0].Text)
}

func TestItemsSkipsBlankText(t *testing.T) {
	path := writeCSV(t, "id,text\ndoc-1,kept\ndoc-2,\ndoc-3,   \ndoc-4,also kept\n")
	source := itemsource.NewCSVSource(path, "id", "text")

	items, err := source.Items(context.Background())
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, "doc-1", items[0].ID)
	assert.Equal(t, "doc-4", items[1].ID)
}

func TestItemsToleratesShortRows(t *testing.T) {
	path := writeCSV(t, "id,text\ndoc-1,kept\ndoc-2\n")
	source := itemsource.NewCSVSource(path, "id", "text")

	items, err := source.Items(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "doc-1", items[0].ID)
}

func TestItemsMissingTextColumnFails(t *testing.T) {
	path := writeCSV(t, "id,body\ndoc-1,some text\n")
	source := itemsource.NewCSVSource(path, "id", "text")

	_, err := source.Items(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "text column 'text' not found")
}

func TestItemsMissingFileFails(t *testing.T) {
	source := itemsource.NewCSVSource(filepath.Join(t.TempDir(), "absent.csv"), "id", "text")

	_, err := source.Items(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open input file")
}
