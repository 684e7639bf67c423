// Package upload turns multipart parts and local paths into UploadedFile
// values. An UploadedFile is never modified after it is accepted.
package upload

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/rmitchellscott/pdfdesk/internal/logging"
	"github.com/rmitchellscott/pdfdesk/internal/security"
)

var (
	ErrTooLarge     = errors.New("file exceeds the upload size limit")
	ErrTooManyFiles = errors.New("too many files")
	ErrNoFiles      = errors.New("no files provided")
)

// UploadedFile is one user supplied file. Name and MimeType are whatever the
// client declared; Name is sanitized before it is shown anywhere.
type UploadedFile struct {
	Name     string
	MimeType string
	Size     int64
	Data     []byte
}

func (f UploadedFile) DeclaredName() string { return f.Name }
func (f UploadedFile) DeclaredType() string { return f.MimeType }

// DisplayName is the sanitized name, safe for UI text and headers.
func (f UploadedFile) DisplayName() string { return security.SanitizeFilename(f.Name) }

// Limits bounds a single drop zone.
type Limits struct {
	MaxFiles int
	MaxBytes int64
}

// LimitsFor returns the per-category count limit with a shared byte limit.
func LimitsFor(c security.Category, maxPDFs, maxImages int, maxBytes int64) Limits {
	switch c {
	case security.CategoryImage:
		return Limits{MaxFiles: maxImages, MaxBytes: maxBytes}
	default:
		return Limits{MaxFiles: maxPDFs, MaxBytes: maxBytes}
	}
}

// DeclaredType resolves the MIME type a browser would report for a part:
// the part's Content-Type, or a lookup by extension when absent.
func DeclaredType(partType, filename string) string {
	if mt := strings.TrimSpace(partType); mt != "" && mt != "application/octet-stream" {
		return mt
	}
	if mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); mt != "" {
		return mt
	}
	return strings.TrimSpace(partType)
}

// FromHeader reads a multipart part into memory.
func FromHeader(fh *multipart.FileHeader, maxBytes int64) (UploadedFile, error) {
	if maxBytes > 0 && fh.Size > maxBytes {
		return UploadedFile{}, fmt.Errorf("%s: %w", security.SanitizeFilename(fh.Filename), ErrTooLarge)
	}
	f, err := fh.Open()
	if err != nil {
		return UploadedFile{}, fmt.Errorf("failed to open upload %s: %w", security.SanitizeFilename(fh.Filename), err)
	}
	defer f.Close()

	data, err := readLimited(f, maxBytes)
	if err != nil {
		return UploadedFile{}, fmt.Errorf("%s: %w", security.SanitizeFilename(fh.Filename), err)
	}
	return newFile(fh.Filename, DeclaredType(fh.Header.Get("Content-Type"), fh.Filename), data), nil
}

// FromPath reads a local file. The declared type comes from the extension.
func FromPath(path string, maxBytes int64) (UploadedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return UploadedFile{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	data, err := readLimited(f, maxBytes)
	if err != nil {
		return UploadedFile{}, fmt.Errorf("%s: %w", path, err)
	}
	name := filepath.Base(path)
	return newFile(name, DeclaredType("", name), data), nil
}

// FromBytes wraps data that is already in memory.
func FromBytes(name, mimeType string, data []byte) UploadedFile {
	return newFile(name, mimeType, data)
}

func newFile(name, mimeType string, data []byte) UploadedFile {
	f := UploadedFile{Name: name, MimeType: mimeType, Size: int64(len(data)), Data: data}
	if sniffed := security.SniffMimeType(data); sniffed != "" && !security.MatchesSniffed(mimeType, data) {
		logging.Debugf("[UPLOAD] %s declared %q but looks like %q", f.DisplayName(), mimeType, sniffed)
	}
	return f
}

func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

// Result is the outcome of accepting a batch for one drop zone.
type Result struct {
	Accepted []UploadedFile
	Rejected []string
}

// Accept validates files against c and the limits. Files with a disallowed
// declared type, and empty files, are rejected by sanitized name. A batch
// over the count limit is refused entirely.
func Accept(files []UploadedFile, c security.Category, lim Limits) (Result, error) {
	if len(files) == 0 {
		return Result{}, ErrNoFiles
	}
	if lim.MaxFiles > 0 && len(files) > lim.MaxFiles {
		return Result{}, fmt.Errorf("%w: %d given, at most %d allowed", ErrTooManyFiles, len(files), lim.MaxFiles)
	}

	valid, rejected := security.ValidateFiles(files, c)
	var res Result
	res.Rejected = rejected
	for _, f := range valid {
		if f.Size == 0 {
			res.Rejected = append(res.Rejected, f.DisplayName())
			continue
		}
		if lim.MaxBytes > 0 && f.Size > lim.MaxBytes {
			res.Rejected = append(res.Rejected, f.DisplayName())
			continue
		}
		res.Accepted = append(res.Accepted, f)
	}
	if len(res.Rejected) > 0 {
		logging.Logf("[UPLOAD] Rejected %d of %d files for %s", len(res.Rejected), len(files), c)
	}
	return res, nil
}
