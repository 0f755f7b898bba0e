package reclassify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jackzampolin/relayout/internal/geometry"
	"github.com/jackzampolin/relayout/internal/types"
)

type echelonItem struct {
	region types.Region
	next   int
}

// separateEchelons discards regions that sit inside a dominant region and
// cuts regions that surround one into the slices above and below it. Each
// slice keeps scanning the dominant regions after the one that cut it.
func (r *Reconciler) separateEchelons(others, dominant []types.Region) []types.Region {
	out := make([]types.Region, 0, len(others))
	for _, reg := range others {
		work := []echelonItem{{region: reg}}
		for len(work) > 0 {
			item := work[0]
			work = work[1:]

			kept := true
			for i := item.next; i < len(dominant); i++ {
				d := dominant[i]
				if geometry.ContainmentRatio(item.region.Box, d.Box) >= r.cfg.InsideThreshold {
					kept = false
					break
				}
				if geometry.ContainmentRatio(d.Box, item.region.Box) >= r.cfg.InsideThreshold {
					for _, s := range r.sliceAround(item.region, d.Box) {
						work = append(work, echelonItem{region: s, next: i + 1})
					}
					kept = false
					break
				}
			}
			if kept {
				out = append(out, item.region)
			}
		}
	}
	return out
}

// sliceAround returns the parts of reg above and below dom that have
// positive extent.
func (r *Reconciler) sliceAround(reg types.Region, dom geometry.Rect) []types.Region {
	var slices []types.Region
	b := reg.Box
	if b.Y0 < dom.Y0 {
		top := geometry.R(b.X0, b.Y0, b.X1, dom.Y0-r.cfg.SliceGap)
		if top.Valid() {
			slices = append(slices, types.Region{Label: reg.Label, Box: top})
		}
	}
	if b.Y1 > dom.Y1 {
		bottom := geometry.R(b.X0, dom.Y1+r.cfg.SliceGap, b.X1, b.Y1)
		if bottom.Valid() {
			slices = append(slices, types.Region{Label: reg.Label, Box: bottom})
		}
	}
	return slices
}

// pruneContained drops every region contained in another region that is
// still alive. On mutual containment the earlier region goes and the later
// one stays.
func (r *Reconciler) pruneContained(regions []types.Region) []types.Region {
	alive := make([]bool, len(regions))
	for i := range alive {
		alive[i] = true
	}
	for i, reg := range regions {
		for j, other := range regions {
			if i == j || !alive[j] {
				continue
			}
			if geometry.ContainmentRatio(reg.Box, other.Box) >= r.cfg.InsideThreshold {
				alive[i] = false
				break
			}
		}
	}
	out := make([]types.Region, 0, len(regions))
	for i, reg := range regions {
		if alive[i] {
			out = append(out, reg)
		}
	}
	return out
}

// resolveOverlaps clips every significantly overlapping pair so they no
// longer overlap. When the pair shares more height than width they sit side
// by side, so the one starting further left is cut at the other's left
// edge; otherwise the one starting higher is cut at the other's top edge.
func (r *Reconciler) resolveOverlaps(regions []types.Region) []types.Region {
	out := append([]types.Region(nil), regions...)
	for i := range out {
		for j := i + 1; j < len(out); j++ {
			a, b := &out[i].Box, &out[j].Box
			if !a.Valid() || !b.Valid() {
				continue
			}
			if geometry.OverlapRatio(*a, *b) < r.cfg.OverlapThreshold {
				continue
			}
			clipApart(a, b)
		}
	}
	return out
}

func clipApart(a, b *geometry.Rect) {
	if geometry.VerticalOverlap(*a, *b) > geometry.HorizontalOverlap(*a, *b) {
		if a.X0 < b.X0 {
			a.X1 = b.X0
		} else {
			b.X1 = a.X0
		}
		return
	}
	if a.Y0 < b.Y0 {
		a.Y1 = b.Y0
	} else {
		b.Y1 = a.Y0
	}
}

// mergeLines folds each region into the first already-emitted region it
// shares a line with. The merged label is the one with higher priority.
func (r *Reconciler) mergeLines(regions []types.Region) ([]types.Region, error) {
	out := make([]types.Region, 0, len(regions))
	for _, reg := range regions {
		merged := false
		if reg.Box.Valid() {
			for k := range out {
				if !out[k].Box.Valid() || !geometry.SameLine(reg.Box, out[k].Box, r.cfg.LineOverlapThreshold) {
					continue
				}
				label, err := r.mergeLabel(out[k].Label, reg.Label)
				if err != nil {
					return nil, err
				}
				out[k].Box = out[k].Box.Union(reg.Box)
				out[k].Label = label
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, reg)
		}
	}
	return out, nil
}

func (r *Reconciler) mergeLabel(kept, incoming types.Label) (types.Label, error) {
	pk, ok := r.cfg.LabelPriority[kept]
	if !ok {
		return "", fmt.Errorf("%w: label %q has no merge priority", ErrInvariant, kept)
	}
	pi, ok := r.cfg.LabelPriority[incoming]
	if !ok {
		return "", fmt.Errorf("%w: label %q has no merge priority", ErrInvariant, incoming)
	}
	if pi > pk {
		return incoming, nil
	}
	return kept, nil
}

type fontGroup struct {
	sig types.FontSignature
	box geometry.Rect
}

// fontGroups returns, in order of first appearance, the bounding box of the
// fragments of each font signature lying entirely inside box.
func fontGroups(box geometry.Rect, fragments []types.Fragment) []fontGroup {
	var groups []fontGroup
	index := make(map[types.FontSignature]int)
	for _, f := range fragments {
		if !box.Contains(f.Box) {
			continue
		}
		sig := f.Signature()
		if i, ok := index[sig]; ok {
			groups[i].box = groups[i].box.Union(f.Box)
			continue
		}
		index[sig] = len(groups)
		groups = append(groups, fontGroup{sig: sig, box: f.Box})
	}
	return groups
}

// splitByFont replaces a region whose fonts map to more than one label with
// one sub-region per font, labeled from stats. Sub-regions are queued
// behind the remaining regions and reprocessed. A box already processed is
// emitted as is, which bounds the work.
func (r *Reconciler) splitByFont(regions []types.Region, inside []types.Fragment, stats *FontStats) []types.Region {
	work := append([]types.Region(nil), regions...)
	seen := make(map[geometry.Rect]bool)
	out := make([]types.Region, 0, len(regions))

	for len(work) > 0 {
		reg := work[0]
		work = work[1:]

		if seen[reg.Box] {
			out = append(out, reg)
			continue
		}
		seen[reg.Box] = true

		groups := fontGroups(reg.Box, inside)
		labels := make(map[types.Label]bool)
		for _, g := range groups {
			labels[stats.LabelFor(g.sig, reg.Label)] = true
		}
		if len(labels) <= 1 {
			out = append(out, reg)
			continue
		}

		subs := make([]types.Region, 0, len(groups))
		for _, g := range groups {
			subs = append(subs, types.Region{Label: stats.LabelFor(g.sig, reg.Label), Box: g.box})
		}
		work = append(work, subs...)
	}
	return out
}

func dropDegenerate(regions []types.Region) []types.Region {
	out := make([]types.Region, 0, len(regions))
	for _, reg := range regions {
		if reg.Box.Valid() {
			out = append(out, reg)
		}
	}
	return out
}

// regroupOutside turns uncovered fragments into new regions. Fragments are
// taken top to bottom; each group grows from its first fragment by absorbing
// the following ungrouped fragments until the grown box would touch a region
// already placed. A seed that already touches a placed region yields nothing.
func (r *Reconciler) regroupOutside(outside []types.Fragment, placed []types.Region, stats *FontStats) []types.Region {
	frags := make([]types.Fragment, 0, len(outside))
	for _, f := range outside {
		if f.Box.Valid() {
			frags = append(frags, f)
		}
	}
	sort.SliceStable(frags, func(i, j int) bool {
		return frags[i].Box.Y0 < frags[j].Box.Y0
	})

	final := append([]types.Region(nil), placed...)
	grouped := make([]bool, len(frags))
	var out []types.Region

	for i, seed := range frags {
		if grouped[i] {
			continue
		}
		grouped[i] = true
		if intersectsAny(seed.Box, final) {
			r.logger.Debug("outside fragment overlaps placed region", "text", seed.Text, "box", seed.Box.String())
			continue
		}

		box := seed.Box
		var text strings.Builder
		text.WriteString(seed.Text)
		for j := i + 1; j < len(frags); j++ {
			if grouped[j] {
				continue
			}
			grown := box.Union(frags[j].Box)
			if intersectsAny(grown, final) {
				break
			}
			box = grown
			text.WriteString(" ")
			text.WriteString(frags[j].Text)
			grouped[j] = true
		}

		reg := types.Region{
			Label: stats.LabelFor(seed.Signature(), r.cfg.DefaultLabel),
			Box:   box,
			Text:  text.String(),
		}
		final = append(final, reg)
		out = append(out, reg)
	}
	return out
}

func intersectsAny(box geometry.Rect, regions []types.Region) bool {
	for _, reg := range regions {
		if geometry.IntersectionArea(box, reg.Box) > 0 {
			return true
		}
	}
	return false
}
