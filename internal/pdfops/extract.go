package pdfops

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rmitchellscott/pdfdesk/internal/logging"
)

// TextSource yields the plain text of a document page by page.
type TextSource interface {
	NumPages() int
	// PageText returns the text of page n, 1-based.
	PageText(n int) (string, error)
}

// TextOpener opens a TextSource over PDF bytes.
type TextOpener func(data []byte) (TextSource, error)

// DefaultTextOpener reads text with ledongthuc/pdf.
var DefaultTextOpener TextOpener = openLedongthuc

type ledongthucSource struct {
	r *pdf.Reader
}

func openLedongthuc(data []byte) (src TextSource, err error) {
	defer func() {
		if r := recover(); r != nil {
			src, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	return ledongthucSource{r: r}, nil
}

func (s ledongthucSource) NumPages() int { return s.r.NumPage() }

func (s ledongthucSource) PageText(n int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed page %d: %v", n, r)
		}
	}()
	page := s.r.Page(n)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

// TextOptions controls how page texts are joined.
type TextOptions struct {
	// PageHeaders prefixes every page with "--- Page N ---".
	PageHeaders bool
	Opener      TextOpener
}

// ExtractText returns the text of every page in order, each page introduced
// by a "--- Page N ---" line and followed by a blank line, trimmed.
func ExtractText(ctx context.Context, in Input, fn ProgressFunc) (string, error) {
	return ExtractTextWith(ctx, in, TextOptions{PageHeaders: true}, fn)
}

// ExtractPlainText joins page texts with blank lines and no headers. This
// is the form sent to the document doctor.
func ExtractPlainText(ctx context.Context, in Input) (string, error) {
	return ExtractTextWith(ctx, in, TextOptions{}, nil)
}

func ExtractTextWith(ctx context.Context, in Input, opts TextOptions, fn ProgressFunc) (string, error) {
	const op = "extract"
	open := opts.Opener
	if open == nil {
		open = DefaultTextOpener
	}
	p := newProgress(fn)
	p.report(0)

	src, err := open(in.Data)
	if err != nil {
		return "", readErr(op, in.Name, err)
	}
	n := src.NumPages()
	if n <= 0 {
		return "", &OpError{Op: op, Kind: KindCorrupt, Name: in.Name, Err: errNoPages}
	}

	var b strings.Builder
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := src.PageText(i)
		if err != nil {
			return "", readErr(op, in.Name, err)
		}
		if opts.PageHeaders {
			fmt.Fprintf(&b, "--- Page %d ---\n", i)
		}
		b.WriteString(normalizeSpace(text))
		b.WriteString("\n\n")
		p.step(i, n, 0, 100)
	}
	logging.Logf("[EXTRACT] Extracted text from %d pages of %s", n, in.Name)
	return strings.TrimSpace(b.String()), nil
}

// normalizeSpace joins a page's text runs with single spaces.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
