// Package geometry provides axis-aligned rectangle math used to reconcile
// detected layout regions with extracted text.
//
// Coordinates are top-down: Y grows toward the bottom of the page, so Y0 is
// the top edge and Y1 the bottom edge.
package geometry

import (
	"encoding/json"
	"fmt"
	"math"
)

// Rect is an axis-aligned rectangle [X0, Y0, X1, Y1].
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// R is shorthand for constructing a Rect.
func R(x0, y0, x1, y1 float64) Rect {
	return Rect{X0: x0, Y0: y0, X1: x1, Y1: y1}
}

// Width returns X1 - X0 (may be negative for degenerate rects).
func (r Rect) Width() float64 { return r.X1 - r.X0 }

// Height returns Y1 - Y0 (may be negative for degenerate rects).
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// Area returns width*height, or 0 for degenerate rects.
func (r Rect) Area() float64 {
	if !r.Valid() {
		return 0
	}
	return r.Width() * r.Height()
}

// Valid reports whether the rect has positive width and height.
func (r Rect) Valid() bool {
	return r.X1 > r.X0 && r.Y1 > r.Y0
}

// Scale multiplies x coordinates by sx and y coordinates by sy.
func (r Rect) Scale(sx, sy float64) Rect {
	return Rect{X0: r.X0 * sx, Y0: r.Y0 * sy, X1: r.X1 * sx, Y1: r.Y1 * sy}
}

// Union returns the smallest rect enclosing both r and o.
func (r Rect) Union(o Rect) Rect {
	return Rect{
		X0: math.Min(r.X0, o.X0),
		Y0: math.Min(r.Y0, o.Y0),
		X1: math.Max(r.X1, o.X1),
		Y1: math.Max(r.Y1, o.Y1),
	}
}

// ContainsPoint reports whether (x, y) lies within r, edges included.
func (r Rect) ContainsPoint(x, y float64) bool {
	return r.X0 <= x && x <= r.X1 && r.Y0 <= y && y <= r.Y1
}

// Contains reports whether o lies entirely within r, edges included.
func (r Rect) Contains(o Rect) bool {
	return o.X0 >= r.X0 && o.X1 <= r.X1 && o.Y0 >= r.Y0 && o.Y1 <= r.Y1
}

// Min returns the top-left corner as an R-tree key.
func (r Rect) Min() [2]float64 { return [2]float64{r.X0, r.Y0} }

// Max returns the bottom-right corner as an R-tree key.
func (r Rect) Max() [2]float64 { return [2]float64{r.X1, r.Y1} }

func (r Rect) String() string {
	return fmt.Sprintf("[%g %g %g %g]", r.X0, r.Y0, r.X1, r.Y1)
}

// MarshalJSON encodes the rect as [x0, y0, x1, y1].
func (r Rect) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{r.X0, r.Y0, r.X1, r.Y1})
}

// UnmarshalJSON decodes a rect from [x0, y0, x1, y1].
func (r *Rect) UnmarshalJSON(data []byte) error {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("box must be an array of 4 numbers: %w", err)
	}
	if len(v) != 4 {
		return fmt.Errorf("box must have 4 coordinates, got %d", len(v))
	}
	*r = Rect{X0: v[0], Y0: v[1], X1: v[2], Y1: v[3]}
	return nil
}

// IntersectionArea returns the area shared by a and b, 0 if disjoint.
func IntersectionArea(a, b Rect) float64 {
	w := math.Min(a.X1, b.X1) - math.Max(a.X0, b.X0)
	h := math.Min(a.Y1, b.Y1) - math.Max(a.Y0, b.Y0)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// ContainmentRatio returns the fraction of inner's area that lies inside outer.
// Returns 0 when inner has no area.
func ContainmentRatio(inner, outer Rect) float64 {
	area := inner.Area()
	if area <= 0 {
		return 0
	}
	return IntersectionArea(inner, outer) / area
}

// OverlapRatio returns the intersection area relative to the smaller of the
// two areas. Returns 0 when either rect has no area.
func OverlapRatio(a, b Rect) float64 {
	smaller := math.Min(a.Area(), b.Area())
	if smaller <= 0 {
		return 0
	}
	return IntersectionArea(a, b) / smaller
}

// VerticalOverlap returns the shared extent of a and b along the y axis.
// Negative when the rects are vertically disjoint.
func VerticalOverlap(a, b Rect) float64 {
	return math.Min(a.Y1, b.Y1) - math.Max(a.Y0, b.Y0)
}

// HorizontalOverlap returns the shared extent of a and b along the x axis.
// Negative when the rects are horizontally disjoint.
func HorizontalOverlap(a, b Rect) float64 {
	return math.Min(a.X1, b.X1) - math.Max(a.X0, b.X0)
}

// SameLine reports whether the vertical overlap of a and b covers at least
// threshold of the shorter of the two heights.
func SameLine(a, b Rect, threshold float64) bool {
	overlap := VerticalOverlap(a, b)
	if overlap <= 0 {
		return false
	}
	shorter := math.Min(a.Height(), b.Height())
	if shorter <= 0 {
		return false
	}
	return overlap/shorter >= threshold
}
