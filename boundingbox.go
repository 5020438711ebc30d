package facedetect

import (
	"fmt"
	"image"
	"math"

	"github.com/pkg/errors"
)

// BoundingBox is an axis aligned rectangle given by its top-left corner and its size.
// Bottom and right are exclusive, i.e. Bottom() = Top + Height.
// BoundingBox is a value type: every transformation returns a new box.
type BoundingBox struct {
	Top    float64
	Left   float64
	Height float64
	Width  float64
}

// Inclusion defines how much of a bounding box has to lie inside the image to be valid.
type Inclusion int

const (
	// FullyContained requires the box to lie completely inside the image.
	FullyContained Inclusion = iota
	// Overlapping accepts every box which shares some area with the image.
	Overlapping
)

// NewBoundingBox creates a new bounding box and rejects non-positive sizes.
func NewBoundingBox(top, left, height, width float64) (BoundingBox, error) {
	if !(height > 0) || !(width > 0) || math.IsInf(height, 0) || math.IsInf(width, 0) {
		return BoundingBox{}, errors.Wrapf(ErrInvalidGeometry, "height %v, width %v", height, width)
	}
	return BoundingBox{Top: top, Left: left, Height: height, Width: width}, nil
}

// Bottom returns the exclusive bottom coordinate.
func (bb BoundingBox) Bottom() float64 { return bb.Top + bb.Height }

// Right returns the exclusive right coordinate.
func (bb BoundingBox) Right() float64 { return bb.Left + bb.Width }

// Center returns the (y, x) center of the box.
func (bb BoundingBox) Center() (float64, float64) {
	return bb.Top + bb.Height/2, bb.Left + bb.Width/2
}

// Area returns the area of the box. Degenerate boxes have zero area.
func (bb BoundingBox) Area() float64 {
	if bb.degenerate() {
		return 0
	}
	return bb.Height * bb.Width
}

func (bb BoundingBox) degenerate() bool {
	return !(bb.Height > 0) || !(bb.Width > 0)
}

// Scale multiplies all coordinates of the box by the given factor.
// It is used to map a window found in a scaled image back to the original image.
func (bb BoundingBox) Scale(f float64) BoundingBox {
	return BoundingBox{
		Top:    bb.Top * f,
		Left:   bb.Left * f,
		Height: bb.Height * f,
		Width:  bb.Width * f,
	}
}

// Shift moves the box by the given offset.
func (bb BoundingBox) Shift(dy, dx float64) BoundingBox {
	return BoundingBox{Top: bb.Top + dy, Left: bb.Left + dx, Height: bb.Height, Width: bb.Width}
}

// Intersection returns the common area of both boxes.
// The second return value is false when the boxes do not intersect.
func (bb BoundingBox) Intersection(other BoundingBox) (BoundingBox, bool) {
	if bb.degenerate() || other.degenerate() {
		return BoundingBox{}, false
	}
	top := math.Max(bb.Top, other.Top)
	left := math.Max(bb.Left, other.Left)
	bottom := math.Min(bb.Bottom(), other.Bottom())
	right := math.Min(bb.Right(), other.Right())
	if bottom <= top || right <= left {
		return BoundingBox{}, false
	}
	return BoundingBox{Top: top, Left: left, Height: bottom - top, Width: right - left}, true
}

// Overlap computes the Jaccard similarity of the two boxes, i.e. the area of the
// intersection divided by the area of the union. The result lies in [0, 1].
// Degenerate (zero area) boxes never overlap with anything.
func (bb BoundingBox) Overlap(other BoundingBox) float64 {
	inter, ok := bb.Intersection(other)
	if !ok {
		return 0
	}
	i := inter.Area()
	union := bb.Area() + other.Area() - i
	if union <= 0 {
		return 0
	}
	// Clamp rounding noise so that identical boxes yield exactly 1.
	return math.Min(1, i/union)
}

// IsValidFor checks the box against an image of the given size.
func (bb BoundingBox) IsValidFor(height, width int, policy Inclusion) bool {
	if bb.degenerate() || height <= 0 || width <= 0 {
		return false
	}
	switch policy {
	case FullyContained:
		return bb.Top >= 0 && bb.Left >= 0 &&
			bb.Bottom() <= float64(height) && bb.Right() <= float64(width)
	case Overlapping:
		img := BoundingBox{Height: float64(height), Width: float64(width)}
		_, ok := bb.Intersection(img)
		return ok
	}
	return false
}

// Rect returns the integral rectangle covering the box.
func (bb BoundingBox) Rect() image.Rectangle {
	return image.Rect(
		int(math.Round(bb.Left)), int(math.Round(bb.Top)),
		int(math.Round(bb.Right())), int(math.Round(bb.Bottom())),
	)
}

func (bb BoundingBox) String() string {
	return fmt.Sprintf("<BB topleft=(%.2f,%.2f), bottomright=(%.2f,%.2f)>", bb.Top, bb.Left, bb.Bottom(), bb.Right())
}
