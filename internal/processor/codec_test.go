package processor

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func TestEncodeJPEGRoundTrip(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 32, 16))
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i], src.Pix[i+1], src.Pix[i+2], src.Pix[i+3] = 100, 150, 200, 255
	}

	data, err := EncodeJPEG(src, DefaultJPEGQuality)
	if err != nil {
		t.Fatalf("EncodeJPEG: %v", err)
	}
	out, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Bounds() != src.Bounds() {
		t.Fatalf("bounds = %v", out.Bounds())
	}

	// Lossy, but visually equivalent.
	r, g, b, _ := out.At(10, 8).RGBA()
	want := color.RGBA{100, 150, 200, 255}
	if diff(uint8(r>>8), want.R) > 4 || diff(uint8(g>>8), want.G) > 4 || diff(uint8(b>>8), want.B) > 4 {
		t.Errorf("pixel = (%d,%d,%d), want about %v", r>>8, g>>8, b>>8, want)
	}
}

func TestEncodeJPEGClampsQuality(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	a, err := EncodeJPEG(src, 0)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := EncodeJPEG(src, DefaultJPEGQuality)
	if !bytes.Equal(a, b) {
		t.Error("out-of-range quality should select the default")
	}
}

func diff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
