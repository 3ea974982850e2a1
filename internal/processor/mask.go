/**
 * Mask Builder for the Poster Worker
 *
 * Turns accepted detections into padded, clamped regions and a binary
 * inpainting mask.
 */

package processor

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// Mask builder defaults
const (
	DefaultConfidenceThreshold = 0.3
	DefaultMaskPadding         = 5
)

var maskOn = image.NewUniform(color.Gray{Y: 255})

// BuildMask turns detections into a removal mask the size of bounds.
//
// Detections with confidence <= threshold are skipped. Every other detection
// contributes the axis-aligned bounding box of its quad, grown by padding on
// each side and clipped to the image. The returned regions are the ones that
// were filled; len(regions) is zero when nothing needs inpainting. Regions
// may overlap; the mask is their union.
func BuildMask(bounds image.Rectangle, detections []Detection, threshold float64, padding int) (*image.Gray, []Region) {
	width, height := bounds.Dx(), bounds.Dy()
	mask := image.NewGray(image.Rect(0, 0, width, height))
	if padding < 0 {
		padding = 0
	}
	if width <= 0 || height <= 0 {
		return mask, nil
	}

	var regions []Region
	for _, det := range detections {
		if !(det.Confidence > threshold) || !det.Quad.finite() {
			continue
		}

		region, ok := regionFor(det.Quad, width, height, padding)
		if !ok {
			continue
		}

		fill := image.Rect(region.XMin, region.YMin, region.XMax+1, region.YMax+1)
		draw.Draw(mask, fill, maskOn, image.Point{}, draw.Src)
		regions = append(regions, region)
	}

	return mask, regions
}

// regionFor computes the padded, clipped box of q. It reports false when the
// box does not overlap the image at all.
func regionFor(q Quad, width, height, padding int) (Region, bool) {
	minX, minY, maxX, maxY := q.Bounds()

	x0 := clampToInt(math.Floor(minX)) - padding
	y0 := clampToInt(math.Floor(minY)) - padding
	x1 := clampToInt(math.Ceil(maxX)) + padding
	y1 := clampToInt(math.Ceil(maxY)) + padding

	if x1 < 0 || y1 < 0 || x0 > width-1 || y0 > height-1 {
		return Region{}, false
	}

	return Region{
		XMin: max(x0, 0),
		YMin: max(y0, 0),
		XMax: min(x1, width-1),
		YMax: min(y1, height-1),
	}, true
}

// clampToInt converts v to int, saturating far outside any image size so the
// padding arithmetic cannot overflow.
func clampToInt(v float64) int {
	const limit = 1 << 30
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return int(v)
}

// MaskArea counts the nonzero pixels of mask.
func MaskArea(mask *image.Gray) int {
	n := 0
	for _, v := range mask.Pix {
		if v != 0 {
			n++
		}
	}
	return n
}
