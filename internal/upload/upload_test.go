package upload

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"

	"github.com/rmitchellscott/pdfdesk/internal/security"
)

func TestDeclaredType(t *testing.T) {
	tests := []struct {
		partType, name, want string
	}{
		{"application/pdf", "a.pdf", "application/pdf"},
		{"", "a.pdf", "application/pdf"},
		{"", "photo.PNG", "image/png"},
		{"application/octet-stream", "scan.jpg", "image/jpeg"},
		{"image/png", "misnamed.pdf", "image/png"},
		{"", "noext", ""},
	}
	for _, tt := range tests {
		if got := DeclaredType(tt.partType, tt.name); got != tt.want {
			t.Errorf("DeclaredType(%q, %q) = %q, want %q", tt.partType, tt.name, got, tt.want)
		}
	}
}

func multipartHeaders(t *testing.T, parts map[string]struct {
	ctype string
	data  []byte
}) []*multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="files"; filename="`+name+`"`)
		if p.ctype != "" {
			h.Set("Content-Type", p.ctype)
		}
		pw, err := w.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		pw.Write(p.data)
	}
	w.Close()

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { form.RemoveAll() })
	return form.File["files"]
}

func TestFromHeader(t *testing.T) {
	headers := multipartHeaders(t, map[string]struct {
		ctype string
		data  []byte
	}{
		"doc.pdf": {"application/pdf", []byte("%PDF-1.4 body")},
	})
	if len(headers) != 1 {
		t.Fatalf("got %d headers", len(headers))
	}

	f, err := FromHeader(headers[0], 1024)
	if err != nil {
		t.Fatalf("FromHeader: %v", err)
	}
	if f.Name != "doc.pdf" || f.MimeType != "application/pdf" || f.Size != int64(len("%PDF-1.4 body")) {
		t.Fatalf("unexpected file %+v", f)
	}

	if _, err := FromHeader(headers[0], 4); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.png")
	if err := os.WriteFile(path, []byte("not really a png"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := FromPath(path, 0)
	if err != nil {
		t.Fatalf("FromPath: %v", err)
	}
	if f.Name != "scan.png" || f.MimeType != "image/png" {
		t.Fatalf("unexpected file %+v", f)
	}
	if _, err := FromPath(filepath.Join(t.TempDir(), "missing.pdf"), 0); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestAccept(t *testing.T) {
	pdf := FromBytes("a.pdf", "application/pdf", []byte("%PDF"))
	img := FromBytes("b.png", "image/png", []byte{1, 2, 3})
	empty := FromBytes("c.pdf", "application/pdf", nil)
	big := FromBytes("d.pdf", "application/pdf", make([]byte, 64))

	res, err := Accept([]UploadedFile{pdf, img, empty, big}, security.CategoryPDF, Limits{MaxFiles: 20, MaxBytes: 32})
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if len(res.Accepted) != 1 || res.Accepted[0].Name != "a.pdf" {
		t.Fatalf("accepted = %+v", res.Accepted)
	}
	want := map[string]bool{"b.png": true, "c.pdf": true, "d.pdf": true}
	if len(res.Rejected) != 3 {
		t.Fatalf("rejected = %v", res.Rejected)
	}
	for _, n := range res.Rejected {
		if !want[n] {
			t.Errorf("unexpected rejected name %q", n)
		}
	}
}

func TestAcceptLimits(t *testing.T) {
	if _, err := Accept(nil, security.CategoryPDF, Limits{}); !errors.Is(err, ErrNoFiles) {
		t.Fatalf("expected ErrNoFiles, got %v", err)
	}

	files := make([]UploadedFile, 3)
	for i := range files {
		files[i] = FromBytes("x.png", "image/png", []byte{1})
	}
	if _, err := Accept(files, security.CategoryImage, Limits{MaxFiles: 2}); !errors.Is(err, ErrTooManyFiles) {
		t.Fatalf("expected ErrTooManyFiles, got %v", err)
	}

	lim := LimitsFor(security.CategoryImage, 20, 50, 0)
	if lim.MaxFiles != 50 {
		t.Fatalf("image limit = %d", lim.MaxFiles)
	}
	if LimitsFor(security.CategoryPDF, 20, 50, 0).MaxFiles != 20 {
		t.Fatal("pdf limit should be 20")
	}
}

func TestDisplayNameSanitizes(t *testing.T) {
	f := FromBytes("<b>report</b>.pdf", "application/pdf", []byte("x"))
	if got := f.DisplayName(); got != "breportb.pdf" {
		t.Fatalf("DisplayName = %q", got)
	}
}
