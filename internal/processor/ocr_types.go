/**
 * OCR Types - Shared data structures for text detection and masking
 *
 * Common types used by the detector engines, the mask builder and the
 * debug overlay.
 */

package processor

import (
	"fmt"
	"math"
)

// Point is a pixel coordinate reported by a text detector.
type Point struct {
	X float64
	Y float64
}

// Quad is a text region as four corner points. Engines that report rotated
// text fill it with the rotated corners; the points need not be axis-aligned.
type Quad [4]Point

// QuadFromRect builds a clockwise quad starting at the top-left corner.
func QuadFromRect(x0, y0, x1, y1 float64) Quad {
	return Quad{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}
}

// Bounds returns the min/max over the four points, independently per axis.
func (q Quad) Bounds() (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, p := range q {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return minX, minY, maxX, maxY
}

func (q Quad) finite() bool {
	for _, p := range q {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return false
		}
	}
	return true
}

// Detection is one text detector output
type Detection struct {
	Quad       Quad
	Text       string  // Recognized string, informational only
	Confidence float64 // 0..1
}

// Region is an axis-aligned rectangle with inclusive bounds that lies
// entirely inside the image it was built for.
type Region struct {
	XMin int
	YMin int
	XMax int
	YMax int
}

// Width returns the number of pixel columns covered by the region.
func (r Region) Width() int { return r.XMax - r.XMin + 1 }

// Height returns the number of pixel rows covered by the region.
func (r Region) Height() int { return r.YMax - r.YMin + 1 }

// Contains reports whether pixel (x, y) is inside the region.
func (r Region) Contains(x, y int) bool {
	return x >= r.XMin && x <= r.XMax && y >= r.YMin && y <= r.YMax
}

func (r Region) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", r.XMin, r.YMin, r.XMax, r.YMax)
}
