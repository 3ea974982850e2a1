/**
 * Inpainter for the Poster Worker
 *
 * Telea fast-marching inpainting: masked pixels are filled from their known
 * neighbourhood, nearest to the mask boundary first.
 */

package processor

import (
	"container/heap"
	"image"
	"math"

	"github.com/adverant/nexus/poster-worker/internal/errors"
)

// DefaultInpaintRadius is how far, in pixels, known texture influences a
// reconstructed pixel.
const DefaultInpaintRadius = 7

// Pixel states of the fast marching method.
const (
	fmmKnown uint8 = iota
	fmmBand
	fmmInside
)

const fmmInf = 1e6

// Inpaint reconstructs every pixel where mask is nonzero from the surrounding
// unmasked texture using Telea's fast marching method. Pixels outside the
// mask are copied unchanged. mask must have the same bounds as src.
func Inpaint(src *image.RGBA, mask *image.Gray, radius int) (*image.RGBA, error) {
	if src.Bounds() != mask.Bounds() {
		return nil, errors.NewInpaintError("mask bounds " + mask.Bounds().String() +
			" do not match image bounds " + src.Bounds().String())
	}
	if radius < 1 {
		radius = 1
	}

	dst := image.NewRGBA(src.Bounds())
	rowBytes := src.Bounds().Dx() * 4
	for y := 0; y < src.Bounds().Dy(); y++ {
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+rowBytes], src.Pix[y*src.Stride:y*src.Stride+rowBytes])
	}

	f := newMarchField(dst, mask, radius)
	f.run()
	return dst, nil
}

// marchField holds the state of one fast marching run. Coordinates are
// relative to the image origin.
type marchField struct {
	img    *image.RGBA
	w, h   int
	radius int
	flag   []uint8
	t      []float64
	band   bandHeap
}

func newMarchField(img *image.RGBA, mask *image.Gray, radius int) *marchField {
	b := img.Bounds()
	f := &marchField{
		img:    img,
		w:      b.Dx(),
		h:      b.Dy(),
		radius: radius,
		flag:   make([]uint8, b.Dx()*b.Dy()),
		t:      make([]float64, b.Dx()*b.Dy()),
	}

	for y := 0; y < f.h; y++ {
		row := mask.Pix[y*mask.Stride : y*mask.Stride+f.w]
		for x, v := range row {
			if v != 0 {
				f.flag[y*f.w+x] = fmmInside
				f.t[y*f.w+x] = fmmInf
			}
		}
	}

	// Seed the narrow band with known pixels touching the masked area.
	for y := 0; y < f.h; y++ {
		for x := 0; x < f.w; x++ {
			i := y*f.w + x
			if f.flag[i] != fmmKnown {
				continue
			}
			if f.isInside(x-1, y) || f.isInside(x+1, y) || f.isInside(x, y-1) || f.isInside(x, y+1) {
				f.flag[i] = fmmBand
				heap.Push(&f.band, bandPixel{x: x, y: y, t: 0})
			}
		}
	}

	return f
}

func (f *marchField) in(x, y int) bool {
	return x >= 0 && y >= 0 && x < f.w && y < f.h
}

func (f *marchField) isInside(x, y int) bool {
	return f.in(x, y) && f.flag[y*f.w+x] == fmmInside
}

// run advances the front until every reachable masked pixel is filled.
func (f *marchField) run() {
	neighbors := [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}

	for f.band.Len() > 0 {
		p := heap.Pop(&f.band).(bandPixel)
		f.flag[p.y*f.w+p.x] = fmmKnown

		for _, d := range neighbors {
			x, y := p.x+d[0], p.y+d[1]
			if !f.isInside(x, y) {
				continue
			}
			i := y*f.w + x
			t := math.Min(
				math.Min(f.solve(x-1, y, x, y-1), f.solve(x+1, y, x, y-1)),
				math.Min(f.solve(x-1, y, x, y+1), f.solve(x+1, y, x, y+1)),
			)
			f.t[i] = t
			f.fill(x, y)
			f.flag[i] = fmmBand
			heap.Push(&f.band, bandPixel{x: x, y: y, t: t})
		}
	}
}

// solve is the first order eikonal update from two orthogonal neighbors.
func (f *marchField) solve(x1, y1, x2, y2 int) float64 {
	known1 := f.in(x1, y1) && f.flag[y1*f.w+x1] == fmmKnown
	known2 := f.in(x2, y2) && f.flag[y2*f.w+x2] == fmmKnown

	switch {
	case known1 && known2:
		a, b := f.t[y1*f.w+x1], f.t[y2*f.w+x2]
		d := a - b
		if math.Abs(d) >= 1 {
			return 1 + math.Min(a, b)
		}
		return (a + b + math.Sqrt(2-d*d)) / 2
	case known1:
		return 1 + f.t[y1*f.w+x1]
	case known2:
		return 1 + f.t[y2*f.w+x2]
	default:
		return fmmInf
	}
}

// gradT estimates the gradient of the arrival time at (x, y) from the
// neighbors that already carry a valid time.
func (f *marchField) gradT(x, y int) (float64, float64) {
	tc := f.t[y*f.w+x]
	axis := func(xa, ya, xb, yb int) float64 {
		okA := f.in(xa, ya) && f.flag[ya*f.w+xa] != fmmInside
		okB := f.in(xb, yb) && f.flag[yb*f.w+xb] != fmmInside
		switch {
		case okA && okB:
			return (f.t[yb*f.w+xb] - f.t[ya*f.w+xa]) * 0.5
		case okB:
			return f.t[yb*f.w+xb] - tc
		case okA:
			return tc - f.t[ya*f.w+xa]
		default:
			return 0
		}
	}
	return axis(x-1, y, x+1, y), axis(x, y-1, x, y+1)
}

// fill sets pixel (x, y) to the weighted average of the non-masked pixels in
// its radius neighbourhood.
func (f *marchField) fill(x, y int) {
	gx, gy := f.gradT(x, y)
	tc := f.t[y*f.w+x]
	r2 := f.radius * f.radius

	var sumR, sumG, sumB, sumW float64
	for ny := y - f.radius; ny <= y+f.radius; ny++ {
		for nx := x - f.radius; nx <= x+f.radius; nx++ {
			if !f.in(nx, ny) || f.flag[ny*f.w+nx] == fmmInside {
				continue
			}
			dx, dy := float64(x-nx), float64(y-ny)
			d2 := int(dx*dx + dy*dy)
			if d2 == 0 || d2 > r2 {
				continue
			}
			dist := math.Sqrt(float64(d2))

			dir := math.Abs(dx*gx+dy*gy) / dist
			if dir < 1e-6 {
				dir = 1e-6
			}
			dst := 1 / (float64(d2) * dist)
			lev := 1 / (1 + math.Abs(f.t[ny*f.w+nx]-tc))
			w := dir * dst * lev

			o := ny*f.img.Stride + nx*4
			sumR += w * float64(f.img.Pix[o])
			sumG += w * float64(f.img.Pix[o+1])
			sumB += w * float64(f.img.Pix[o+2])
			sumW += w
		}
	}
	if sumW == 0 {
		return
	}

	o := y*f.img.Stride + x*4
	f.img.Pix[o] = clampByte(sumR / sumW)
	f.img.Pix[o+1] = clampByte(sumG / sumW)
	f.img.Pix[o+2] = clampByte(sumB / sumW)
	f.img.Pix[o+3] = 255
}

func clampByte(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

type bandPixel struct {
	x, y int
	t    float64
}

// bandHeap is a min-heap on arrival time.
type bandHeap []bandPixel

func (h bandHeap) Len() int           { return len(h) }
func (h bandHeap) Less(i, j int) bool { return h[i].t < h[j].t }
func (h bandHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *bandHeap) Push(x any) { *h = append(*h, x.(bandPixel)) }

func (h *bandHeap) Pop() any {
	old := *h
	n := len(old)
	p := old[n-1]
	*h = old[:n-1]
	return p
}
