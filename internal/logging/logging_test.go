package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestLogfSplitsTag(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, "json", "info")
	defer Setup(os.Stdout, "text", "info")

	Logf("[MERGE] merged %d files", 3)

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected json line, got %q: %v", buf.String(), err)
	}
	if line["component"] != "MERGE" {
		t.Errorf("component = %v, want MERGE", line["component"])
	}
	if line["msg"] != "merged 3 files" {
		t.Errorf("msg = %v", line["msg"])
	}
}

func TestDebugSuppressedAtInfo(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, "text", "info")
	defer Setup(os.Stdout, "text", "info")

	Debugf("[SPLIT] page %d", 1)
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
	Warnf("no tag here")
	if !strings.Contains(buf.String(), "no tag here") {
		t.Fatalf("warning missing: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSplitTag(t *testing.T) {
	tests := []struct {
		in, tag, rest string
	}{
		{"[A] b", "A", "b"},
		{"[] b", "", "[] b"},
		{"plain", "", "plain"},
		{"[unterminated", "", "[unterminated"},
	}
	for _, tt := range tests {
		tag, rest := splitTag(tt.in)
		if tag != tt.tag || rest != tt.rest {
			t.Errorf("splitTag(%q) = (%q, %q), want (%q, %q)", tt.in, tag, rest, tt.tag, tt.rest)
		}
	}
}
