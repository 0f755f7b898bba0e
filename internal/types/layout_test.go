package types

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackzampolin/relayout/internal/geometry"
)

func TestParseLabel(t *testing.T) {
	t.Run("known labels", func(t *testing.T) {
		for _, l := range Labels {
			got, err := ParseLabel(string(l))
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", l, err)
			}
			if got != l {
				t.Errorf("expected %q, got %q", l, got)
			}
		}
	})

	t.Run("unknown label", func(t *testing.T) {
		_, err := ParseLabel("Sidebar")
		if !errors.Is(err, ErrUnknownLabel) {
			t.Errorf("expected ErrUnknownLabel, got %v", err)
		}
	})

	t.Run("case sensitive", func(t *testing.T) {
		if _, err := ParseLabel("text"); err == nil {
			t.Error("expected error for lowercase label")
		}
	})
}

func TestValidateRegions(t *testing.T) {
	ok := []Region{{Label: LabelText, Box: geometry.R(0, 0, 1, 1)}}
	if err := ValidateRegions(ok); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	bad := append(ok, Region{Label: "Marginalia", Box: geometry.R(0, 0, 1, 1)})
	if err := ValidateRegions(bad); !errors.Is(err, ErrUnknownLabel) {
		t.Errorf("expected ErrUnknownLabel, got %v", err)
	}
}

func TestFragment_JSON(t *testing.T) {
	var f Fragment
	raw := `{"box":[1,2,3,4],"text":"a","fontname":"Times-Bold","size":12}`
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Signature() != (FontSignature{Font: "Times-Bold", Size: 12}) {
		t.Errorf("unexpected signature: %v", f.Signature())
	}
	if f.Box != geometry.R(1, 2, 3, 4) {
		t.Errorf("unexpected box: %v", f.Box)
	}
}
