package itemsource

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	model "github.com/kgforge/kgforge/pkg/kgforge/core/domain/model"
	"github.com/kgforge/kgforge/pkg/kgforge/support/util/exception"
	"github.com/kgforge/kgforge/pkg/kgforge/support/util/logger"
)

const moduleName = "itemsource"

// CSVSource reads items from a CSV file with a header row. The id column is
// optional: when absent or empty, items carry an empty id and the submitter
// falls back to positional custom ids.
type CSVSource struct {
	path       string
	idColumn   string
	textColumn string
}

var _ Source = (*CSVSource)(nil)

// NewCSVSource creates a CSV-backed item source.
func NewCSVSource(path, idColumn, textColumn string) *CSVSource {
	return &CSVSource{path: path, idColumn: idColumn, textColumn: textColumn}
}

// Items reads the whole file, skipping rows whose text column is blank.
func (s *CSVSource) Items(ctx context.Context) ([]model.Item, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to open input file '%s'", s.path), err, false, false)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to read CSV header from '%s'", s.path), err, false, false)
	}

	textIdx, idIdx := -1, -1
	for i, col := range header {
		name := strings.TrimSpace(col)
		if name == s.textColumn {
			textIdx = i
		}
		if s.idColumn != "" && name == s.idColumn {
			idIdx = i
		}
	}
	if textIdx < 0 {
		return nil, exception.NewBatchError(moduleName,
			fmt.Sprintf("text column '%s' not found in '%s'", s.textColumn, s.path), nil, false, false)
	}

	var items []model.Item
	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to read CSV row from '%s'", s.path), err, false, false)
		}
		if textIdx >= len(record) {
			skipped++
			continue
		}
		text := strings.TrimSpace(record[textIdx])
		if text == "" {
			skipped++
			continue
		}
		item := model.Item{Text: text}
		if idIdx >= 0 && idIdx < len(record) {
			item.ID = strings.TrimSpace(record[idIdx])
		}
		items = append(items, item)
	}
	if skipped > 0 {
		logger.Debugf("Skipped %d blank rows in '%s'.", skipped, s.path)
	}
	return items, nil
}
