package reclassify

import (
	"errors"
	"reflect"
	"testing"

	"github.com/jackzampolin/relayout/internal/geometry"
	"github.com/jackzampolin/relayout/internal/types"
)

func region(label types.Label, x0, y0, x1, y1 float64) types.Region {
	return types.Region{Label: label, Box: geometry.R(x0, y0, x1, y1)}
}

func fragment(text, font string, size int, x0, y0, x1, y1 float64) types.Fragment {
	return types.Fragment{Box: geometry.R(x0, y0, x1, y1), Text: text, Font: font, Size: size}
}

func newReconciler(t *testing.T) *Reconciler {
	t.Helper()
	r, err := New(DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return r
}

func assertRegions(t *testing.T, got, want []types.Region) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d regions, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i].Label != want[i].Label || got[i].Box != want[i].Box {
			t.Errorf("region %d: expected %s %v, got %s %v", i, want[i].Label, want[i].Box, got[i].Label, got[i].Box)
		}
	}
}

func TestRun_EchelonSeparation(t *testing.T) {
	r := newReconciler(t)

	t.Run("region inside dominant is discarded", func(t *testing.T) {
		got, err := r.Run([]types.Region{
			region(types.LabelText, 10, 10, 20, 20),
			region(types.LabelPicture, 0, 0, 100, 100),
		}, nil, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertRegions(t, got, []types.Region{region(types.LabelPicture, 0, 0, 100, 100)})
	})

	t.Run("region around dominant is sliced", func(t *testing.T) {
		got, err := r.Run([]types.Region{
			region(types.LabelText, 0, 0, 100, 100),
			region(types.LabelTable, 0, 40, 100, 60),
		}, nil, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertRegions(t, got, []types.Region{
			region(types.LabelText, 0, 0, 100, 39),
			region(types.LabelText, 0, 61, 100, 100),
			region(types.LabelTable, 0, 40, 100, 60),
		})
	})

	t.Run("each slice is checked against later dominants", func(t *testing.T) {
		got, err := r.Run([]types.Region{
			region(types.LabelText, 0, 0, 100, 100),
			region(types.LabelTable, 0, 20, 100, 30),
			region(types.LabelPicture, 0, 70, 100, 80),
		}, nil, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertRegions(t, got, []types.Region{
			region(types.LabelText, 0, 0, 100, 19),
			region(types.LabelText, 0, 31, 100, 69),
			region(types.LabelText, 0, 81, 100, 100),
			region(types.LabelTable, 0, 20, 100, 30),
			region(types.LabelPicture, 0, 70, 100, 80),
		})
	})

	t.Run("slice without room is dropped", func(t *testing.T) {
		got, err := r.Run([]types.Region{
			region(types.LabelText, 0, 0, 100, 60),
			region(types.LabelPicture, 0, 0.5, 100, 50),
		}, nil, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertRegions(t, got, []types.Region{
			region(types.LabelText, 0, 51, 100, 60),
			region(types.LabelPicture, 0, 0.5, 100, 50),
		})
	})
}

func TestRun_ContainmentPruning(t *testing.T) {
	r := newReconciler(t)

	t.Run("contained region is dropped", func(t *testing.T) {
		got, err := r.Run([]types.Region{
			region(types.LabelText, 10, 10, 20, 20),
			region(types.LabelListItem, 0, 0, 100, 100),
		}, nil, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertRegions(t, got, []types.Region{region(types.LabelListItem, 0, 0, 100, 100)})
	})

	t.Run("earlier container still prunes later region", func(t *testing.T) {
		got, err := r.Run([]types.Region{
			region(types.LabelListItem, 0, 0, 100, 100),
			region(types.LabelText, 10, 10, 20, 20),
		}, nil, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertRegions(t, got, []types.Region{region(types.LabelListItem, 0, 0, 100, 100)})
	})

	t.Run("mutual containment keeps one", func(t *testing.T) {
		got, err := r.Run([]types.Region{
			region(types.LabelFormula, 0, 0, 50, 50),
			region(types.LabelCaption, 0, 0, 50, 50),
		}, nil, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertRegions(t, got, []types.Region{region(types.LabelCaption, 0, 0, 50, 50)})
	})
}

func TestRun_OverlapResolution(t *testing.T) {
	r := newReconciler(t)

	t.Run("diagonal overlap clips earlier region", func(t *testing.T) {
		got, err := r.Run([]types.Region{
			region(types.LabelText, 0, 0, 10, 10),
			region(types.LabelText, 5, 5, 15, 15),
		}, nil, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertRegions(t, got, []types.Region{
			region(types.LabelText, 0, 0, 10, 5),
			region(types.LabelText, 5, 5, 15, 15),
		})
		if a := geometry.IntersectionArea(got[0].Box, got[1].Box); a != 0 {
			t.Errorf("expected no overlap after clipping, got %v", a)
		}
	})

	t.Run("side by side overlap clips horizontally", func(t *testing.T) {
		got, err := r.Run([]types.Region{
			region(types.LabelText, 0, 0, 60, 100),
			region(types.LabelText, 50, 10, 100, 90),
		}, nil, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// Clipped apart, then the pair shares a line and merges.
		assertRegions(t, got, []types.Region{region(types.LabelText, 0, 0, 100, 100)})
	})

	t.Run("degenerate result is dropped", func(t *testing.T) {
		got, err := r.Run([]types.Region{
			region(types.LabelText, 0, 0, 10, 10),
			region(types.LabelText, 0, 2, 5, 20),
		}, nil, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertRegions(t, got, []types.Region{region(types.LabelText, 0, 0, 10, 10)})
	})
}

func TestRun_LineMerge(t *testing.T) {
	r := newReconciler(t)

	t.Run("higher priority label wins", func(t *testing.T) {
		got, err := r.Run([]types.Region{
			region(types.LabelText, 0, 0, 50, 10),
			region(types.LabelTitle, 60, 0, 120, 10),
		}, nil, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertRegions(t, got, []types.Region{region(types.LabelTitle, 0, 0, 120, 10)})
	})

	t.Run("equal priority keeps first label", func(t *testing.T) {
		got, err := r.Run([]types.Region{
			region(types.LabelText, 0, 0, 50, 10),
			region(types.LabelText, 60, 0, 120, 10),
		}, nil, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertRegions(t, got, []types.Region{region(types.LabelText, 0, 0, 120, 10)})
	})

	t.Run("label without priority fails", func(t *testing.T) {
		_, err := r.Run([]types.Region{
			region(types.LabelCaption, 0, 0, 50, 10),
			region(types.LabelText, 60, 0, 120, 10),
		}, nil, nil)
		if !errors.Is(err, ErrInvariant) {
			t.Errorf("expected ErrInvariant, got %v", err)
		}
	})

	t.Run("label without priority is fine when nothing merges", func(t *testing.T) {
		got, err := r.Run([]types.Region{
			region(types.LabelCaption, 0, 0, 50, 10),
			region(types.LabelText, 0, 20, 50, 30),
		}, nil, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("expected 2 regions, got %d", len(got))
		}
	})
}

func TestRun_FontSplit(t *testing.T) {
	r := newReconciler(t)

	t.Run("mixed fonts split into labeled sub-regions", func(t *testing.T) {
		regions := []types.Region{
			region(types.LabelText, 0, 0, 100, 100),
			region(types.LabelTitle, 0, 200, 100, 220),
		}
		inside := []types.Fragment{
			fragment("H", "Bold", 14, 10, 10, 20, 20),
			fragment("i", "Bold", 14, 30, 10, 40, 20),
			fragment("b", "Reg", 10, 10, 50, 20, 60),
			fragment("o", "Reg", 10, 30, 50, 40, 60),
			fragment("T", "Bold", 14, 10, 205, 20, 215),
			fragment("I", "Bold", 14, 30, 205, 40, 215),
			fragment("E", "Bold", 14, 50, 205, 60, 215),
		}
		got, err := r.Run(regions, inside, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertRegions(t, got, []types.Region{
			region(types.LabelTitle, 0, 200, 100, 220),
			region(types.LabelTitle, 10, 10, 40, 20),
			region(types.LabelText, 10, 50, 40, 60),
		})
	})

	t.Run("sub-regions follow unsplit regions", func(t *testing.T) {
		regions := []types.Region{
			region(types.LabelText, 0, 0, 100, 100),
			region(types.LabelText, 0, 200, 100, 220),
			region(types.LabelTitle, 0, 300, 100, 320),
		}
		inside := []types.Fragment{
			fragment("H", "Bold", 14, 10, 5, 20, 15),
			fragment("i", "Bold", 14, 30, 5, 40, 15),
			fragment("b", "Reg", 10, 10, 25, 20, 35),
			fragment("o", "Reg", 10, 30, 25, 40, 35),
			fragment("x", "Reg", 10, 10, 205, 20, 215),
			fragment("y", "Reg", 10, 30, 205, 40, 215),
			fragment("T", "Bold", 14, 10, 305, 20, 315),
			fragment("I", "Bold", 14, 30, 305, 40, 315),
			fragment("E", "Bold", 14, 50, 305, 60, 315),
		}
		got, err := r.Run(regions, inside, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertRegions(t, got, []types.Region{
			region(types.LabelText, 0, 200, 100, 220),
			region(types.LabelTitle, 0, 300, 100, 320),
			region(types.LabelTitle, 10, 5, 40, 15),
			region(types.LabelText, 10, 25, 40, 35),
		})
	})

	t.Run("split identical to parent terminates", func(t *testing.T) {
		regions := []types.Region{
			region(types.LabelText, 10, 10, 40, 20),
			region(types.LabelTitle, 0, 200, 100, 220),
		}
		inside := []types.Fragment{
			fragment("a", "Bold", 14, 10, 10, 15, 20),
			fragment("b", "Reg", 10, 20, 10, 25, 20),
			fragment("c", "Bold", 14, 35, 10, 40, 20),
			fragment("T", "Bold", 14, 10, 205, 20, 215),
			fragment("I", "Bold", 14, 30, 205, 40, 215),
			fragment("E", "Bold", 14, 50, 205, 60, 215),
		}
		got, err := r.Run(regions, inside, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertRegions(t, got, []types.Region{
			region(types.LabelTitle, 0, 200, 100, 220),
			region(types.LabelTitle, 10, 10, 40, 20),
			region(types.LabelText, 20, 10, 25, 20),
		})
	})
}

func TestRun_OutsideRegrouping(t *testing.T) {
	r := newReconciler(t)
	regions := []types.Region{region(types.LabelText, 0, 50, 100, 60)}

	t.Run("group stops at first conflict", func(t *testing.T) {
		outside := []types.Fragment{
			fragment("c", "Reg", 10, 0, 70, 10, 80),
			fragment("a", "Reg", 10, 0, 0, 10, 10),
			fragment("b", "Reg", 10, 20, 0, 30, 10),
		}
		got, err := r.Run(regions, nil, outside)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertRegions(t, got, []types.Region{
			region(types.LabelText, 0, 50, 100, 60),
			region(types.LabelText, 0, 0, 30, 10),
			region(types.LabelText, 0, 70, 10, 80),
		})
		if got[1].Text != "a b" {
			t.Errorf("expected grouped text %q, got %q", "a b", got[1].Text)
		}
		for _, s := range got[1:] {
			if a := geometry.IntersectionArea(s.Box, regions[0].Box); a != 0 {
				t.Errorf("synthesized region %v overlaps placed region by %v", s.Box, a)
			}
		}
	})

	t.Run("label comes from font statistics", func(t *testing.T) {
		regs := []types.Region{region(types.LabelSectionHeader, 0, 50, 100, 60)}
		inside := []types.Fragment{fragment("S", "Bold", 12, 5, 52, 10, 58)}
		outside := []types.Fragment{fragment("x", "Bold", 12, 0, 0, 10, 10)}
		got, err := r.Run(regs, inside, outside)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 || got[1].Label != types.LabelSectionHeader {
			t.Errorf("expected synthesized Section-header, got %+v", got)
		}
	})

	t.Run("seed touching placed region yields nothing", func(t *testing.T) {
		outside := []types.Fragment{fragment("x", "Reg", 10, 95, 55, 105, 58)}
		got, err := r.Run(regions, nil, outside)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertRegions(t, got, regions)
	})

	t.Run("zero area fragments are ignored", func(t *testing.T) {
		outside := []types.Fragment{fragment("x", "Reg", 10, 0, 0, 0, 10)}
		got, err := r.Run(regions, nil, outside)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertRegions(t, got, regions)
	})
}

func TestRun_Properties(t *testing.T) {
	r := newReconciler(t)
	regions := []types.Region{
		region(types.LabelText, 0, 50, 100, 60),
		region(types.LabelPageHeader, 0, 0, 100, 8),
	}
	outside := []types.Fragment{
		fragment("a", "Reg", 10, 0, 20, 10, 30),
		fragment("b", "Reg", 10, 20, 20, 30, 30),
		fragment("c", "Reg", 10, 0, 70, 10, 80),
	}

	first, err := r.Run(regions, nil, outside)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("deterministic", func(t *testing.T) {
		again, err := r.Run(regions, nil, outside)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Errorf("expected identical output, got %+v and %+v", first, again)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		second, err := r.Run(first, nil, outside)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(second) != len(first) {
			t.Fatalf("expected %d regions, got %d: %+v", len(first), len(second), second)
		}
		for _, want := range first {
			found := false
			for _, g := range second {
				if g.Label == want.Label && g.Box == want.Box {
					found = true
				}
			}
			if !found {
				t.Errorf("region %s %v missing after second run", want.Label, want.Box)
			}
		}
	})

	t.Run("inputs untouched", func(t *testing.T) {
		if regions[0].Box != geometry.R(0, 50, 100, 60) {
			t.Errorf("input region mutated: %v", regions[0].Box)
		}
		if outside[0].Text != "a" {
			t.Errorf("input fragments reordered")
		}
	})
}

func TestRun_UnknownLabel(t *testing.T) {
	r := newReconciler(t)
	_, err := r.Run([]types.Region{region("Marginalia", 0, 0, 10, 10)}, nil, nil)
	if !errors.Is(err, ErrInvariant) {
		t.Errorf("expected ErrInvariant, got %v", err)
	}
	if !errors.Is(err, types.ErrUnknownLabel) {
		t.Errorf("expected ErrUnknownLabel, got %v", err)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero inside threshold", func(c *Config) { c.InsideThreshold = 0 }},
		{"overlap above one", func(c *Config) { c.OverlapThreshold = 1.5 }},
		{"negative gap", func(c *Config) { c.SliceGap = -1 }},
		{"unknown dominant", func(c *Config) { c.DominantLabels = []types.Label{"Sidebar"} }},
		{"unknown default", func(c *Config) { c.DefaultLabel = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if _, err := New(cfg, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}
