package pdfops

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rmitchellscott/pdfdesk/internal/logging"
)

// Layout of rendered text documents, in points.
const (
	TextMargin     = 56.69 // 20mm
	TextLineHeight = 19.84 // 7mm
	TextFontSize   = 11
	// average Helvetica advance as a fraction of the font size
	avgGlyphWidth = 0.5
)

// RenderText lays plain text out on A4 pages, wrapping at the margins.
func RenderText(ctx context.Context, text string) ([]byte, error) {
	const op = "render"
	lines := WrapText(text, maxLineRunes(A4Width))
	perPage := linesPerPage(A4Height)
	pages := (len(lines) + perPage - 1) / perPage
	if pages == 0 {
		pages = 1
	}

	doc, err := blankPages(pages, A4Width, A4Height)
	if err != nil {
		return nil, opErr(op, err)
	}

	marks := make(map[int][]*model.Watermark)
	for i, line := range lines {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		page := i/perPage + 1
		row := i % perPage
		y := A4Height - TextMargin - float64(row+1)*TextLineHeight
		wm, err := textMark(line, TextFontSize, TextMargin, y)
		if err != nil {
			return nil, opErr(op, err)
		}
		marks[page] = append(marks[page], wm)
	}
	if len(marks) == 0 {
		return doc, nil
	}

	var out bytes.Buffer
	if err := api.AddWatermarksSliceMap(bytes.NewReader(doc), &out, marks, newConfig()); err != nil {
		return nil, opErr(op, err)
	}
	logging.Logf("[RENDER] Rendered %d lines on %d pages", len(lines), pages)
	return out.Bytes(), nil
}

func linesPerPage(pageH float64) int {
	return int(math.Floor((pageH - 2*TextMargin) / TextLineHeight))
}

func maxLineRunes(pageW float64) int {
	return int((pageW - 2*TextMargin) / (TextFontSize * avgGlyphWidth))
}

// WrapText breaks text into lines of at most width runes, on word
// boundaries where possible. Existing line breaks are kept.
func WrapText(text string, width int) []string {
	if width <= 0 {
		width = 1
	}
	var lines []string
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		var cur strings.Builder
		curLen := 0
		for _, w := range words {
			for utf8.RuneCountInString(w) > width {
				if curLen > 0 {
					lines = append(lines, cur.String())
					cur.Reset()
					curLen = 0
				}
				r := []rune(w)
				lines = append(lines, string(r[:width]))
				w = string(r[width:])
			}
			wl := utf8.RuneCountInString(w)
			if curLen > 0 && curLen+1+wl > width {
				lines = append(lines, cur.String())
				cur.Reset()
				curLen = 0
			}
			if curLen > 0 {
				cur.WriteByte(' ')
				curLen++
			}
			cur.WriteString(w)
			curLen += wl
		}
		if curLen > 0 {
			lines = append(lines, cur.String())
		}
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// blankPages creates a document of n empty pages by importing a single
// white pixel onto each.
func blankPages(n int, w, h float64) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.White)
	var px bytes.Buffer
	if err := png.Encode(&px, img); err != nil {
		return nil, err
	}

	imp := pdfcpu.DefaultImportConfig()
	imp.PageDim = &types.Dim{Width: w, Height: h}
	imp.PageSize = ""
	imp.UserDim = true
	imp.Pos = types.Center
	imp.Scale = 1
	imp.ScaleAbs = true
	imp.InpUnit = types.POINTS

	readers := make([]io.Reader, n)
	for i := range readers {
		readers[i] = bytes.NewReader(px.Bytes())
	}
	var out bytes.Buffer
	if err := api.ImportImages(nil, &out, readers, imp, newConfig()); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
