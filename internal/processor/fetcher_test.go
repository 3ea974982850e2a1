package processor

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/adverant/nexus/poster-worker/internal/errors"
)

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestHTTPFetcherDecodesImage(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	src.Set(1, 1, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	src.Set(2, 2, color.NRGBA{R: 255, G: 255, B: 255, A: 0}) // transparent
	body := pngBytes(t, src)

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "image/png")
		w.Write(body)
	}))
	defer srv.Close()

	img, err := NewHTTPFetcher(time.Second, 0).Fetch(context.Background(), srv.URL+"/p.png")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if img.Bounds() != image.Rect(0, 0, 4, 3) {
		t.Errorf("bounds = %v", img.Bounds())
	}
	if got := img.RGBAAt(1, 1); got != (color.RGBA{200, 100, 50, 255}) {
		t.Errorf("pixel = %v", got)
	}
	if got := img.RGBAAt(2, 2); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("transparent pixel should be composited over black, got %v", got)
	}
	if gotUA != fetchUserAgent {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestHTTPFetcherErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/slow":
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
		case "/text":
			w.Write([]byte("this is not an image"))
		case "/huge":
			w.Write(bytes.Repeat([]byte{0xff}, 4096))
		}
	}))
	defer srv.Close()

	tests := []struct {
		name string
		url  string
		want errors.ErrorCode
	}{
		{"not found", srv.URL + "/missing", errors.ErrorFetchFailed},
		{"timeout", srv.URL + "/slow", errors.ErrorFetchFailed},
		{"not an image", srv.URL + "/text", errors.ErrorDecodeFailed},
		{"oversize", srv.URL + "/huge", errors.ErrorFetchFailed},
		{"bad scheme", "file:///etc/passwd", errors.ErrorFetchFailed},
		{"unparsable", "http://[::1", errors.ErrorFetchFailed},
	}

	f := NewHTTPFetcher(100*time.Millisecond, 1024)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Fetch(context.Background(), tt.url)
			if got := errors.CodeOf(err); got != tt.want {
				t.Fatalf("code = %q, want %q (err: %v)", got, tt.want, err)
			}
		})
	}
}
