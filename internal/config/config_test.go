package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetFileFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret")
	if err := os.WriteFile(path, []byte("  s3cret\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PDFDESK_TEST_SECRET", "")
	t.Setenv("PDFDESK_TEST_SECRET_FILE", path)

	if got := Get("PDFDESK_TEST_SECRET", "def"); got != "s3cret" {
		t.Fatalf("Get() = %q, want s3cret", got)
	}
}

func TestGetDuration(t *testing.T) {
	tests := []struct {
		val  string
		want time.Duration
	}{
		{"", 5 * time.Second},
		{"90s", 90 * time.Second},
		{"2m", 2 * time.Minute},
		{"30", 30 * time.Second},
		{"garbage", 5 * time.Second},
	}
	for _, tt := range tests {
		t.Setenv("PDFDESK_TEST_DURATION", tt.val)
		if got := GetDuration("PDFDESK_TEST_DURATION", 5*time.Second); got != tt.want {
			t.Errorf("GetDuration(%q) = %v, want %v", tt.val, got, tt.want)
		}
	}
}

func TestGetBool(t *testing.T) {
	t.Setenv("PDFDESK_TEST_BOOL", "YES")
	if !GetBool("PDFDESK_TEST_BOOL", false) {
		t.Fatal("expected true")
	}
	t.Setenv("PDFDESK_TEST_BOOL", "maybe")
	if GetBool("PDFDESK_TEST_BOOL", false) {
		t.Fatal("unrecognised value should fall back to default")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("DB_TYPE", "")
	t.Setenv("MAX_PDF_FILES", "")
	t.Setenv("MAX_IMAGE_FILES", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Limits.MaxPDFFiles != 20 || cfg.Limits.MaxImageFiles != 50 {
		t.Errorf("limits = %+v", cfg.Limits)
	}
	if cfg.AI.Model != "gemini-1.5-flash" {
		t.Errorf("model = %q", cfg.AI.Model)
	}
}

func TestLoadRejectsS3WithoutBucket(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "s3")
	t.Setenv("S3_BUCKET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for s3 without bucket")
	}
}
