package reclassify

import (
	"fmt"

	"github.com/jackzampolin/relayout/internal/types"
)

// Config holds the thresholds and label tables used by the reconciler.
type Config struct {
	// InsideThreshold is the containment ratio at which one region is
	// considered to sit inside another.
	InsideThreshold float64

	// OverlapThreshold is the overlap ratio (relative to the smaller area)
	// at which two regions are clipped apart.
	OverlapThreshold float64

	// LineOverlapThreshold is the fraction of the shorter height two regions
	// must share vertically to be merged as one line.
	LineOverlapThreshold float64

	// SliceGap is the seam left between a dominant region and the slices cut
	// from a region that surrounds it.
	SliceGap float64

	// DominantLabels are set aside before reconciliation and re-appended
	// unchanged at the end.
	DominantLabels []types.Label

	// LabelPriority decides which label survives a same-line merge.
	// Higher wins; ties keep the label already emitted.
	LabelPriority map[types.Label]int

	// DefaultLabel labels regrouped outside text whose font is unmapped.
	DefaultLabel types.Label
}

// DefaultConfig returns the standard reconciliation settings.
func DefaultConfig() Config {
	return Config{
		InsideThreshold:      0.98,
		OverlapThreshold:     0.05,
		LineOverlapThreshold: 0.98,
		SliceGap:             1,
		DominantLabels: []types.Label{
			types.LabelPicture,
			types.LabelTable,
			types.LabelPageHeader,
			types.LabelPageFooter,
			types.LabelFootnote,
		},
		LabelPriority: map[types.Label]int{
			types.LabelTitle:         4,
			types.LabelSectionHeader: 3,
			types.LabelText:          2,
			types.LabelFootnote:      1,
		},
		DefaultLabel: types.LabelText,
	}
}

// Validate checks thresholds are ratios and every configured label is known.
func (c Config) Validate() error {
	ratios := []struct {
		name  string
		value float64
	}{
		{"inside_threshold", c.InsideThreshold},
		{"overlap_threshold", c.OverlapThreshold},
		{"line_overlap_threshold", c.LineOverlapThreshold},
	}
	for _, r := range ratios {
		if r.value <= 0 || r.value > 1 {
			return fmt.Errorf("%s must be in (0, 1], got %v", r.name, r.value)
		}
	}
	if c.SliceGap < 0 {
		return fmt.Errorf("slice_gap must not be negative, got %v", c.SliceGap)
	}
	for _, l := range c.DominantLabels {
		if !l.Valid() {
			return fmt.Errorf("dominant label: %w: %q", types.ErrUnknownLabel, l)
		}
	}
	for l := range c.LabelPriority {
		if !l.Valid() {
			return fmt.Errorf("label priority: %w: %q", types.ErrUnknownLabel, l)
		}
	}
	if !c.DefaultLabel.Valid() {
		return fmt.Errorf("default label: %w: %q", types.ErrUnknownLabel, c.DefaultLabel)
	}
	return nil
}

// ParseLabels converts label names from configuration into Labels.
func ParseLabels(names []string) ([]types.Label, error) {
	out := make([]types.Label, 0, len(names))
	for _, n := range names {
		l, err := types.ParseLabel(n)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// ParsePriority converts a label name -> priority table from configuration.
func ParsePriority(m map[string]int) (map[types.Label]int, error) {
	out := make(map[types.Label]int, len(m))
	for n, p := range m {
		l, err := types.ParseLabel(n)
		if err != nil {
			return nil, err
		}
		out[l] = p
	}
	return out, nil
}
