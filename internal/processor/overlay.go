/**
 * Debug Overlay for the Poster Worker
 *
 * Draws detections and mask regions over a poster for the inspect command.
 */

package processor

import (
	"fmt"
	"image"

	"github.com/fogleman/gg"
)

// RenderOverlay draws the analysis over its raster for debugging: detected
// quads in yellow with their confidence, accepted mask regions in red.
func RenderOverlay(a *Analysis) image.Image {
	dc := gg.NewContextForImage(a.Raster)
	dc.SetLineWidth(2)

	dc.SetRGB(1, 0.85, 0)
	for _, det := range a.Detections {
		if !det.Quad.finite() {
			continue
		}
		dc.MoveTo(det.Quad[0].X, det.Quad[0].Y)
		for _, p := range det.Quad[1:] {
			dc.LineTo(p.X, p.Y)
		}
		dc.ClosePath()
		dc.Stroke()

		label := fmt.Sprintf("%.2f %s", det.Confidence, det.Text)
		dc.DrawString(label, det.Quad[0].X, det.Quad[0].Y-3)
	}

	dc.SetRGB(1, 0, 0)
	for _, r := range a.Regions {
		dc.DrawRectangle(float64(r.XMin), float64(r.YMin), float64(r.Width()), float64(r.Height()))
		dc.Stroke()
	}

	return dc.Image()
}
