package workspace

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rmitchellscott/pdfdesk/internal/annotation"
	"github.com/rmitchellscott/pdfdesk/internal/objurl"
	"github.com/rmitchellscott/pdfdesk/internal/pdfops"
	"github.com/rmitchellscott/pdfdesk/internal/upload"
)

// Output is one downloadable file produced by a run.
type Output struct {
	URL         string `json:"url"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	// Page is set for split outputs, 1-based.
	Page int `json:"page,omitempty"`
}

// Compression summarises a compress run.
type Compression struct {
	OriginalSize   int64   `json:"originalSize"`
	CompressedSize int64   `json:"compressedSize"`
	Saved          int64   `json:"saved"`
	Ratio          float64 `json:"ratio"`
}

// Result is what a successful run leaves behind.
type Result struct {
	Outputs     []Output     `json:"outputs"`
	Text        string       `json:"text,omitempty"`
	Compression *Compression `json:"compression,omitempty"`
}

// RunOptions are the per-run choices a tool accepts.
type RunOptions struct {
	// Orientation applies to the images tool.
	Orientation pdfops.Orientation `json:"orientation"`
}

// produced is a run's output before any blob exists.
type produced struct {
	blobs       []objurl.Blob
	pages       []int
	text        string
	compression *Compression
}

const (
	contentPDF  = "application/pdf"
	contentText = "text/plain; charset=utf-8"
)

// Download names.
const (
	MergedName = "merged-document.pdf"
	ImagesName = "images-to-pdf.pdf"
)

// baseName strips the directory and the extension.
func baseName(name string) string {
	name = filepath.Base(name)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func SplitName(src string, page int) string { return fmt.Sprintf("%s-page-%d.pdf", baseName(src), page) }
func CompressedName(src string) string      { return baseName(src) + "-compressed.pdf" }
func EditedName(src string) string          { return "edited_" + filepath.Base(src) }
func TextName(src string) string            { return baseName(src) + "_text.txt" }

func inputs(files []upload.UploadedFile) []pdfops.Input {
	out := make([]pdfops.Input, len(files))
	for i, f := range files {
		out[i] = pdfops.Input{Name: f.DisplayName(), Data: f.Data}
	}
	return out
}

// produce runs the tool's operation. It creates nothing outside memory.
func produce(ctx context.Context, spec Spec, files []upload.UploadedFile, opts RunOptions, notes []annotation.Annotation, fn pdfops.ProgressFunc) (produced, error) {
	if len(files) == 0 {
		return produced{}, ErrNotEnoughFiles
	}
	in := inputs(files)

	switch spec.Tool {
	case ToolMerge:
		data, err := pdfops.Merge(ctx, in, fn)
		if err != nil {
			return produced{}, err
		}
		return single(MergedName, contentPDF, data), nil

	case ToolSplit:
		pages, err := pdfops.Split(ctx, in[0], fn)
		if err != nil {
			return produced{}, err
		}
		var out produced
		for _, p := range pages {
			out.blobs = append(out.blobs, objurl.Blob{Data: p.Data, ContentType: contentPDF, Name: SplitName(in[0].Name, p.Number)})
			out.pages = append(out.pages, p.Number)
		}
		return out, nil

	case ToolCompress:
		res, err := pdfops.Compress(ctx, in[0], fn)
		if err != nil {
			return produced{}, err
		}
		out := single(CompressedName(in[0].Name), contentPDF, res.Data)
		out.compression = &Compression{
			OriginalSize:   res.OriginalSize,
			CompressedSize: res.CompressedSize,
			Saved:          res.Saved,
			Ratio:          res.Ratio,
		}
		return out, nil

	case ToolImages:
		images := make([]pdfops.Image, len(files))
		for i, f := range files {
			images[i] = pdfops.Image{Name: f.DisplayName(), Data: f.Data}
		}
		data, err := pdfops.ImagesToPDF(ctx, images, opts.Orientation, fn)
		if err != nil {
			return produced{}, err
		}
		return single(ImagesName, contentPDF, data), nil

	case ToolExtract:
		text, err := pdfops.ExtractText(ctx, in[0], fn)
		if err != nil {
			return produced{}, err
		}
		out := single(TextName(in[0].Name), contentText, []byte(text))
		out.text = text
		return out, nil

	case ToolEdit:
		data, err := pdfops.Bake(ctx, in[0], notes, fn)
		if err != nil {
			return produced{}, err
		}
		return single(EditedName(in[0].Name), contentPDF, data), nil
	}

	return produced{}, fmt.Errorf("%w: unknown tool %q", ErrInvalidTransition, spec.Tool)
}

func single(name, contentType string, data []byte) produced {
	return produced{blobs: []objurl.Blob{{Data: data, ContentType: contentType, Name: name}}}
}

// MessageKey maps a run error to the i18n key shown to the user.
func MessageKey(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "backend.errors.cancelled"
	case errors.Is(err, ErrBusy):
		return "backend.errors.operation_in_progress"
	case errors.Is(err, ErrNotEnoughFiles):
		return "backend.errors.not_enough_files"
	}
	switch pdfops.KindOf(err) {
	case pdfops.KindEncrypted:
		return "backend.errors.password_protected"
	case pdfops.KindCorrupt:
		return "backend.errors.corrupt_pdf"
	case pdfops.KindUnsupported:
		return "backend.errors.unsupported_file"
	case pdfops.KindInvalidInput:
		return "backend.errors.invalid_input"
	}
	return "backend.errors.operation_failed"
}
