package security

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestValidateStorageKey(t *testing.T) {
	blob := "blobs/" + uuid.NewString()
	tests := []struct {
		key  string
		want error
	}{
		{blob, nil},
		{"blobs/report..v2", nil},
		{"", ErrEmptyPath},
		{"blobs/../settings.db", ErrPathTraversal},
		{"../" + blob, ErrPathTraversal},
		{"/" + blob, ErrAbsolutePath},
		{"blobs/\x00", ErrInvalidPath},
		{"blobs//x", ErrPathTraversal},
		{"blobs/./x", ErrPathTraversal},
		{"blobs/", ErrPathTraversal},
	}
	for _, tt := range tests {
		if err := ValidateStorageKey(tt.key); !errors.Is(err, tt.want) {
			t.Errorf("ValidateStorageKey(%q) = %v, want %v", tt.key, err, tt.want)
		}
	}
}

func TestSafeJoinOutputNames(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		want error
	}{
		{"merged-document.pdf", nil},
		{"Q1..report-page-1.pdf", nil},
		{"notes...pdf", nil},
		{"v1..2-compressed.pdf", nil},
		{"..hidden.txt", nil},
		{"..", ErrPathTraversal},
		{"../escape.pdf", ErrPathTraversal},
		{`..\escape.pdf`, ErrPathTraversal},
		{"/etc/passwd", ErrAbsolutePath},
		{"", ErrEmptyPath},
		{".", ErrPathTraversal},
	}
	for _, tt := range tests {
		got, err := SafeJoin(dir, tt.name)
		if !errors.Is(err, tt.want) {
			t.Errorf("SafeJoin(%q) error = %v, want %v", tt.name, err, tt.want)
			continue
		}
		if err == nil && got != filepath.Join(dir, tt.name) {
			t.Errorf("SafeJoin(%q) = %q", tt.name, got)
		}
	}
}

func TestSafeJoinSanitizedNames(t *testing.T) {
	dir := t.TempDir()
	// whatever an upload is called, its sanitized form stays in dir
	for _, raw := range []string{"../../etc/passwd", `..\..\boot.ini`, "a/../../b.pdf", "...."} {
		name := SanitizeFilename(raw)
		got, err := SafeJoin(dir, name)
		if err != nil {
			continue
		}
		if filepath.Dir(got) != dir {
			t.Errorf("SafeJoin(%q) = %q escapes %s", name, got, dir)
		}
	}
}

func TestSafeJoinNeedsBase(t *testing.T) {
	if _, err := SafeJoin("", "file.pdf"); err == nil {
		t.Error("SafeJoin with empty base succeeded")
	}
}
