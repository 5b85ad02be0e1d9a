package data

import (
	"fmt"
	"image"
	"math"
)

// Box is an axis-aligned bounding box in absolute pixel coordinates.
type Box struct {
	XMin, YMin, XMax, YMax float64
}

// String formats the box as [xmin, ymin, xmax, ymax].
func (b Box) String() string {
	return fmt.Sprintf("[%g, %g, %g, %g]", b.XMin, b.YMin, b.XMax, b.YMax)
}

// Slice returns the box as [xmin, ymin, xmax, ymax].
func (b Box) Slice() [4]float64 {
	return [4]float64{b.XMin, b.YMin, b.XMax, b.YMax}
}

// Width returns xmax - xmin.
func (b Box) Width() float64 {
	return b.XMax - b.XMin
}

// Height returns ymax - ymin.
func (b Box) Height() float64 {
	return b.YMax - b.YMin
}

// Area returns the area of the box in pixels. Degenerate boxes have area 0.
func (b Box) Area() float64 {
	if !b.Valid() {
		return 0
	}
	return b.Width() * b.Height()
}

// Valid reports whether xmin < xmax and ymin < ymax.
func (b Box) Valid() bool {
	return b.XMin < b.XMax && b.YMin < b.YMax
}

// Scale multiplies x coordinates by sx and y coordinates by sy, then shifts by (dx, dy).
func (b Box) Scale(sx, sy, dx, dy float64) Box {
	return Box{
		XMin: b.XMin*sx + dx,
		YMin: b.YMin*sy + dy,
		XMax: b.XMax*sx + dx,
		YMax: b.YMax*sy + dy,
	}
}

// ToRect converts the box to an image.Rectangle.
//
// This loses fractional pixels around the edges; the rectangle is only used
// for drawing and cropping.
func (b Box) ToRect() image.Rectangle {
	return image.Rect(
		int(math.Floor(b.XMin)), int(math.Floor(b.YMin)),
		int(math.Ceil(b.XMax)), int(math.Ceil(b.YMax)),
	).Canon()
}

// Intersection calculates the intersection area between two boxes.
func (b Box) Intersection(other Box) float64 {
	inter := Box{
		XMin: math.Max(b.XMin, other.XMin),
		YMin: math.Max(b.YMin, other.YMin),
		XMax: math.Min(b.XMax, other.XMax),
		YMax: math.Min(b.YMax, other.YMax),
	}
	return inter.Area()
}

// IoU calculates the Intersection over Union between two boxes, 0 when both are empty.
func (b Box) IoU(other Box) float64 {
	inter := b.Intersection(other)
	union := b.Area() + other.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
