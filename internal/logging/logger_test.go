package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerWritesKeyValues(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter("poster", &buf, LevelInfo)

	l.Info("cache hit", "key", "abc", "bytes", 42)

	out := buf.String()
	if !strings.Contains(out, "[poster] ") {
		t.Fatalf("missing prefix: %q", out)
	}
	if !strings.Contains(out, "[INFO] cache hit key=abc bytes=42") {
		t.Fatalf("unexpected line: %q", out)
	}
}

func TestLoggerDropsOddTrailingKey(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter("poster", &buf, LevelDebug)

	l.Debug("msg", "dangling")

	if strings.Contains(buf.String(), "dangling") {
		t.Fatalf("dangling key should not be printed: %q", buf.String())
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter("poster", &buf, LevelWarn)

	l.Debug("debug line")
	l.Info("info line")
	l.Warn("warn line")
	l.Error("error line")

	out := buf.String()
	if strings.Contains(out, "debug line") || strings.Contains(out, "info line") {
		t.Fatalf("lines below warn were written: %q", out)
	}
	if !strings.Contains(out, "[WARN] warn line") || !strings.Contains(out, "[ERROR] error line") {
		t.Fatalf("expected warn and error lines: %q", out)
	}
}

func TestNamedInheritsLevelAndWriter(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLoggerWithWriter("worker", &buf, LevelError)
	child := parent.Named("queue")

	child.Warn("suppressed")
	child.Error("kept")

	out := buf.String()
	if strings.Contains(out, "suppressed") {
		t.Fatalf("child ignored parent level: %q", out)
	}
	if !strings.Contains(out, "[queue] ") {
		t.Fatalf("child prefix missing: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"bogus":   LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNopDiscards(t *testing.T) {
	l := NewNop()
	l.Error("nothing")
}
