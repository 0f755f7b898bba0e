package reclassify

import (
	"github.com/jackzampolin/relayout/internal/types"
)

// FontStats maps a font signature to the label most often seen for it.
type FontStats struct {
	labels map[types.FontSignature]types.Label
}

// BuildFontStats tallies, for each fragment, the label of the first region
// whose box contains the fragment's top-left corner, and keeps the most
// frequent label per signature. On equal counts the label seen first wins.
// Fragments not enclosed by any region are ignored.
func BuildFontStats(fragments []types.Fragment, regions []types.Region) *FontStats {
	counts := make(map[types.FontSignature]map[types.Label]int)
	order := make(map[types.FontSignature][]types.Label)

	for _, f := range fragments {
		for _, r := range regions {
			if !r.Box.ContainsPoint(f.Box.X0, f.Box.Y0) {
				continue
			}
			sig := f.Signature()
			if counts[sig] == nil {
				counts[sig] = make(map[types.Label]int)
			}
			if counts[sig][r.Label] == 0 {
				order[sig] = append(order[sig], r.Label)
			}
			counts[sig][r.Label]++
			break
		}
	}

	labels := make(map[types.FontSignature]types.Label, len(counts))
	for sig, seen := range order {
		best, bestCount := seen[0], 0
		for _, l := range seen {
			if c := counts[sig][l]; c > bestCount {
				best, bestCount = l, c
			}
		}
		labels[sig] = best
	}
	return &FontStats{labels: labels}
}

// Lookup returns the label for sig and whether one was recorded.
func (s *FontStats) Lookup(sig types.FontSignature) (types.Label, bool) {
	l, ok := s.labels[sig]
	return l, ok
}

// LabelFor returns the label for sig, or fallback when sig is unmapped.
func (s *FontStats) LabelFor(sig types.FontSignature, fallback types.Label) types.Label {
	if l, ok := s.labels[sig]; ok {
		return l
	}
	return fallback
}

// Len returns the number of mapped signatures.
func (s *FontStats) Len() int {
	return len(s.labels)
}
