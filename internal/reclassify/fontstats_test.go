package reclassify

import (
	"testing"

	"github.com/jackzampolin/relayout/internal/types"
)

func TestBuildFontStats(t *testing.T) {
	regions := []types.Region{
		region(types.LabelTitle, 0, 0, 100, 20),
		region(types.LabelText, 0, 10, 100, 100),
	}

	t.Run("first enclosing region wins", func(t *testing.T) {
		// Top-left corner sits in both regions; Title is listed first.
		stats := BuildFontStats([]types.Fragment{fragment("a", "Bold", 14, 5, 12, 10, 18)}, regions)
		got, ok := stats.Lookup(types.FontSignature{Font: "Bold", Size: 14})
		if !ok || got != types.LabelTitle {
			t.Errorf("expected Title, got %q (found=%v)", got, ok)
		}
	})

	t.Run("most frequent label", func(t *testing.T) {
		frags := []types.Fragment{
			fragment("a", "Reg", 10, 5, 2, 10, 8),
			fragment("b", "Reg", 10, 5, 30, 10, 38),
			fragment("c", "Reg", 10, 5, 50, 10, 58),
		}
		stats := BuildFontStats(frags, regions)
		if got := stats.LabelFor(types.FontSignature{Font: "Reg", Size: 10}, types.LabelCaption); got != types.LabelText {
			t.Errorf("expected Text, got %q", got)
		}
	})

	t.Run("tie keeps label seen first", func(t *testing.T) {
		frags := []types.Fragment{
			fragment("a", "Reg", 10, 5, 30, 10, 38),
			fragment("b", "Reg", 10, 5, 2, 10, 8),
		}
		stats := BuildFontStats(frags, regions)
		if got, _ := stats.Lookup(types.FontSignature{Font: "Reg", Size: 10}); got != types.LabelText {
			t.Errorf("expected Text, got %q", got)
		}
	})

	t.Run("unenclosed fragments are ignored", func(t *testing.T) {
		stats := BuildFontStats([]types.Fragment{fragment("z", "Mono", 9, 500, 500, 510, 510)}, regions)
		if stats.Len() != 0 {
			t.Errorf("expected empty stats, got %d entries", stats.Len())
		}
		if got := stats.LabelFor(types.FontSignature{Font: "Mono", Size: 9}, types.LabelText); got != types.LabelText {
			t.Errorf("expected fallback Text, got %q", got)
		}
	})

	t.Run("size is part of the signature", func(t *testing.T) {
		frags := []types.Fragment{
			fragment("a", "Reg", 14, 5, 2, 10, 8),
			fragment("b", "Reg", 10, 5, 30, 10, 38),
		}
		stats := BuildFontStats(frags, regions)
		if got, _ := stats.Lookup(types.FontSignature{Font: "Reg", Size: 14}); got != types.LabelTitle {
			t.Errorf("expected Title for size 14, got %q", got)
		}
		if got, _ := stats.Lookup(types.FontSignature{Font: "Reg", Size: 10}); got != types.LabelText {
			t.Errorf("expected Text for size 10, got %q", got)
		}
	})
}
