package geo

import "fmt"

// RectF is a normalized rectangle within a page's full rendered extent.
// All components are fractions of the page size in [0, 1], with the origin
// in the upper-left corner.
type RectF struct {
	Left   float64
	Top    float64
	Right  float64
	Bottom float64
}

// FullPage covers the whole page.
func FullPage() RectF { return RectF{0, 0, 1, 1} }

// Width returns the horizontal fraction of the page the rectangle covers.
func (r RectF) Width() float64 { return r.Right - r.Left }

// Height returns the vertical fraction of the page the rectangle covers.
func (r RectF) Height() float64 { return r.Bottom - r.Top }

// IsEmpty reports whether the rectangle encloses no area.
func (r RectF) IsEmpty() bool { return r.Right <= r.Left || r.Bottom <= r.Top }

// Clamp restricts every component to [0, 1] and returns the result.
func (r RectF) Clamp() RectF {
	return RectF{
		Left:   clamp01(r.Left),
		Top:    clamp01(r.Top),
		Right:  clamp01(r.Right),
		Bottom: clamp01(r.Bottom),
	}
}

// Contains returns true if the normalized point (x, y) is within the rectangle.
func (r RectF) Contains(x, y float64) bool {
	return x >= r.Left && x <= r.Right && y >= r.Top && y <= r.Bottom
}

func (r RectF) String() string {
	return fmt.Sprintf("RectF(%g,%g,%g,%g)", r.Left, r.Top, r.Right, r.Bottom)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
