package pagestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackzampolin/relayout/internal/types"
)

// OutputFiles returns the inside and outside JSON paths for a page under dir.
func OutputFiles(dir string, key types.PageKey) (inside, outside string) {
	base := fmt.Sprintf("%s_page_%d", key.DocumentID, key.Page)
	return filepath.Join(dir, base+"_inside.json"), filepath.Join(dir, base+"_outside.json")
}

// WriteComparisonFiles writes the inside and outside fragment lists of a
// comparison as two JSON files under dir.
func WriteComparisonFiles(dir string, key types.PageKey, cmp Comparison) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create outputs directory: %w", err)
	}
	inside, outside := OutputFiles(dir, key)
	if err := writeJSON(inside, cmp.Inside); err != nil {
		return err
	}
	return writeJSON(outside, cmp.Outside)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp, path)
}
