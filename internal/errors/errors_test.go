package errors

import (
	"fmt"
	"io"
	"testing"
	"time"
)

func TestCodeOfWalksWrappedChain(t *testing.T) {
	base := NewFetchError("https://example.com/p.jpg", 503, nil)
	wrapped := fmt.Errorf("stage fetch: %w", base)

	if got := CodeOf(wrapped); got != ErrorFetchFailed {
		t.Fatalf("CodeOf() = %q, want %q", got, ErrorFetchFailed)
	}
	if got := CodeOf(io.EOF); got != "" {
		t.Fatalf("CodeOf(io.EOF) = %q, want empty", got)
	}
	if got := CodeOf(nil); got != "" {
		t.Fatalf("CodeOf(nil) = %q, want empty", got)
	}
}

func TestIsMatchesNestedCodes(t *testing.T) {
	fetchErr := NewFetchError("https://example.com/p.jpg", 0, io.ErrUnexpectedEOF)
	pipelineErr := NewPipelineError("abc", "https://example.com/p.jpg", fetchErr)

	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"outer code", pipelineErr, ErrorPipelineFailed, true},
		{"inner code", pipelineErr, ErrorFetchFailed, true},
		{"absent code", pipelineErr, ErrorDecodeFailed, false},
		{"wrapped by fmt", fmt.Errorf("x: %w", pipelineErr), ErrorFetchFailed, true},
		{"plain error", io.EOF, ErrorFetchFailed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Fatalf("Is(%v, %s) = %v, want %v", tt.err, tt.code, got, tt.want)
			}
		})
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := NewCacheIOError("k1", "write", io.ErrShortWrite)
	want := "CACHE_IO_FAILED: Cache write failed (caused by: short write)"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestToMap(t *testing.T) {
	err := NewProcessingTimeoutError("k2", 2*time.Second, io.EOF)
	m := err.ToMap()

	if m["error_code"] != "PROCESSING_TIMEOUT" {
		t.Fatalf("error_code = %v", m["error_code"])
	}
	if m["cache_key"] != "k2" {
		t.Fatalf("cache_key = %v", m["cache_key"])
	}
	if m["timeout_duration"] != "2s" {
		t.Fatalf("timeout_duration = %v", m["timeout_duration"])
	}
	if m["cause"] != "EOF" {
		t.Fatalf("cause = %v", m["cause"])
	}
}
