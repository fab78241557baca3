// Package geometry defines normalized bounding boxes and the coordinate-space
// reconciliation between receipt-relative and photo-relative frames.
package geometry

import (
	"encoding/json"
	"math"
)

// Box is a normalized bounding box (x0,y0,x1,y1), each coordinate in [0,1]
// relative to the full image. On the wire it is a 4-element array. A box
// violating the invariant is treated as absent, never clamped into validity.
type Box struct {
	X0, Y0, X1, Y1 float64
}

// Valid reports whether the box satisfies x0<x1, y0<y1 and all coordinates
// within [0,1].
func (b Box) Valid() bool {
	for _, v := range [4]float64{b.X0, b.Y0, b.X1, b.Y1} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	if b.X0 < 0 || b.Y0 < 0 || b.X1 > 1 || b.Y1 > 1 {
		return false
	}
	return b.X0 < b.X1 && b.Y0 < b.Y1
}

// CenterX returns the horizontal center.
func (b Box) CenterX() float64 { return (b.X0 + b.X1) / 2 }

// CenterY returns the vertical center.
func (b Box) CenterY() float64 { return (b.Y0 + b.Y1) / 2 }

// Union returns the smallest box covering both inputs.
func Union(a, b Box) Box {
	return Box{
		X0: math.Min(a.X0, b.X0),
		Y0: math.Min(a.Y0, b.Y0),
		X1: math.Max(a.X1, b.X1),
		Y1: math.Max(a.Y1, b.Y1),
	}
}

// MarshalJSON renders the box as [x0,y0,x1,y1].
func (b Box) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{round6(b.X0), round6(b.Y0), round6(b.X1), round6(b.Y1)})
}

// UnmarshalJSON is lenient: anything that is not a 4-element numeric array
// decodes to the zero (invalid) box rather than failing the enclosing
// payload. Callers gate on Valid().
func (b *Box) UnmarshalJSON(data []byte) error {
	var coords []float64
	if err := json.Unmarshal(data, &coords); err != nil || len(coords) != 4 {
		*b = Box{}
		return nil
	}
	*b = Box{X0: coords[0], Y0: coords[1], X1: coords[2], Y1: coords[3]}
	return nil
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// FromReceiptSpace maps a box expressed as fractions within the receipt
// region into the full-photo frame by linear interpolation. Returns nil when
// the transformed box fails the normalized-box invariant.
func FromReceiptSpace(receipt, inner Box) *Box {
	rw := receipt.X1 - receipt.X0
	rh := receipt.Y1 - receipt.Y0
	out := Box{
		X0: receipt.X0 + inner.X0*rw,
		Y0: receipt.Y0 + inner.Y0*rh,
		X1: receipt.X0 + inner.X1*rw,
		Y1: receipt.Y0 + inner.Y1*rh,
	}
	if !out.Valid() {
		return nil
	}
	return &out
}
