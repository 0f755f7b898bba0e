package pagestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackzampolin/relayout/internal/geometry"
	"github.com/jackzampolin/relayout/internal/types"
)

func TestWriteComparisonFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "outputs")
	key := types.PageKey{DocumentID: "abc", Page: 3}
	cmp := Comparison{
		Inside:  []types.Fragment{{Box: geometry.R(0, 0, 1, 1), Text: "a", Font: "Times", Size: 10}},
		Outside: []types.Fragment{},
	}

	if err := WriteComparisonFiles(dir, key, cmp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	inside, outside := OutputFiles(dir, key)
	if filepath.Base(inside) != "abc_page_3_inside.json" {
		t.Errorf("unexpected inside file name: %s", inside)
	}
	if filepath.Base(outside) != "abc_page_3_outside.json" {
		t.Errorf("unexpected outside file name: %s", outside)
	}

	data, err := os.ReadFile(inside)
	if err != nil {
		t.Fatalf("failed to read inside file: %v", err)
	}
	var got []types.Fragment
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("failed to decode inside file: %v", err)
	}
	if len(got) != 1 || got[0].Text != "a" || got[0].Box != geometry.R(0, 0, 1, 1) {
		t.Errorf("unexpected inside contents: %+v", got)
	}

	data, err = os.ReadFile(outside)
	if err != nil {
		t.Fatalf("failed to read outside file: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("expected empty outside list, got %s", data)
	}
}
