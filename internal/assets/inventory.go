package assets

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/user/sitemirror/internal/entity"
	"github.com/user/sitemirror/internal/repository"
)

var inventoryHeader = []string{"type", "url"}

// WriteInventory writes the two-column resource listing with a header row.
func WriteInventory(path string, records []entity.AssetRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create inventory %s: %w", path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(inventoryHeader); err != nil {
		return fmt.Errorf("write inventory header: %w", err)
	}
	for _, r := range records {
		if err := w.Write([]string{string(r.Kind), r.URL}); err != nil {
			return fmt.Errorf("write inventory row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush inventory: %w", err)
	}
	return nil
}

// ReadInventory loads a listing written by WriteInventory. A missing file
// wraps repository.ErrInventoryMissing.
func ReadInventory(path string) ([]entity.AssetRecord, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", repository.ErrInventoryMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("open inventory %s: %w", path, err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = 2
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse inventory %s: %w", path, err)
	}

	var records []entity.AssetRecord
	for i, row := range rows {
		if i == 0 && row[0] == inventoryHeader[0] && row[1] == inventoryHeader[1] {
			continue
		}
		records = append(records, entity.AssetRecord{
			Kind: entity.ParseAssetKind(row[0]),
			URL:  row[1],
		})
	}
	return records, nil
}
