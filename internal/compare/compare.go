// Package compare partitions a page's text fragments into those covered by
// detected layout regions and those left uncovered.
package compare

import (
	"github.com/tidwall/rtree"

	"github.com/jackzampolin/relayout/internal/geometry"
	"github.com/jackzampolin/relayout/internal/types"
)

// DefaultThreshold is the fraction of a fragment's area that must fall inside
// a single region for the fragment to count as covered.
const DefaultThreshold = 0.3

// Result holds the two ordered partitions of a page's fragments.
type Result struct {
	Inside  []types.Fragment `json:"inside"`
	Outside []types.Fragment `json:"outside"`
}

// Normalize returns copies of fragments with boxes scaled by (sx, sy).
func Normalize(fragments []types.Fragment, sx, sy float64) []types.Fragment {
	out := make([]types.Fragment, len(fragments))
	for i, f := range fragments {
		f.Box = f.Box.Scale(sx, sy)
		out[i] = f
	}
	return out
}

// Classify splits fragments into inside and outside sets. A fragment is inside
// when some region's intersection with it is at least threshold times the
// fragment's area. Zero-area fragments are always outside. Both partitions keep
// the input order.
func Classify(fragments []types.Fragment, regions []types.Region, threshold float64) Result {
	var idx rtree.RTreeG[int]
	for i, r := range regions {
		if !r.Box.Valid() {
			continue
		}
		idx.Insert(r.Box.Min(), r.Box.Max(), i)
	}

	res := Result{
		Inside:  make([]types.Fragment, 0, len(fragments)),
		Outside: make([]types.Fragment, 0),
	}
	for _, f := range fragments {
		if covered(&idx, regions, f, threshold) {
			res.Inside = append(res.Inside, f)
		} else {
			res.Outside = append(res.Outside, f)
		}
	}
	return res
}

func covered(idx *rtree.RTreeG[int], regions []types.Region, f types.Fragment, threshold float64) bool {
	area := f.Box.Area()
	if area <= 0 {
		return false
	}
	found := false
	idx.Search(f.Box.Min(), f.Box.Max(), func(_, _ [2]float64, i int) bool {
		inter := geometry.IntersectionArea(f.Box, regions[i].Box)
		if inter > 0 && inter >= threshold*area {
			found = true
			return false
		}
		return true
	})
	return found
}
