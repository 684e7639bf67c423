package pdfops

import (
	"bytes"
	"context"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rmitchellscott/pdfdesk/internal/logging"
)

// CompressResult reports sizes in bytes. The output is not guaranteed to be
// smaller: Saved is negative when it grew.
type CompressResult struct {
	Data           []byte
	OriginalSize   int64
	CompressedSize int64
	Saved          int64
	// Ratio is Saved as a percentage of OriginalSize.
	Ratio float64
}

var infoKeys = []string{"Title", "Author", "Subject", "Keywords", "Producer", "Creator"}

// Compress rewrites a document more compactly: form fields are locked when
// possible, descriptive metadata is dropped, duplicate objects are merged
// and the result is written with object and xref streams. Images and fonts
// are left as they are.
func Compress(ctx context.Context, in Input, fn ProgressFunc) (CompressResult, error) {
	const op = "compress"
	p := newProgress(fn)
	p.report(0)
	if err := Validate(in); err != nil {
		return CompressResult{}, withOp(op, err)
	}

	src := in.Data
	var locked bytes.Buffer
	if err := api.LockFormFields(in.reader(), &locked, nil, newConfig()); err == nil {
		src = locked.Bytes()
	} else {
		logging.Debugf("[COMPRESS] Form lock skipped for %s: %v", in.Name, err)
	}
	p.report(20)

	if err := ctx.Err(); err != nil {
		return CompressResult{}, err
	}
	conf := newConfig()
	conf.WriteObjectStream = true
	conf.WriteXRefStream = true
	pctx, err := load(op, in.Name, src, conf)
	if err != nil {
		return CompressResult{}, err
	}
	p.report(40)

	stripMetadata(pctx)
	p.report(50)

	if err := api.OptimizeContext(pctx); err != nil {
		return CompressResult{}, opErr(op, err)
	}
	p.report(80)

	var out bytes.Buffer
	if err := api.WriteContext(pctx, &out); err != nil {
		return CompressResult{}, opErr(op, err)
	}
	p.report(100)

	res := NewCompressResult(int64(len(in.Data)), out.Bytes())
	logging.Logf("[COMPRESS] %s: %d -> %d bytes (%.1f%%)", in.Name, res.OriginalSize, res.CompressedSize, res.Ratio)
	return res, nil
}

// NewCompressResult measures data against the original size.
func NewCompressResult(original int64, data []byte) CompressResult {
	res := CompressResult{
		Data:           data,
		OriginalSize:   original,
		CompressedSize: int64(len(data)),
	}
	res.Saved = res.OriginalSize - res.CompressedSize
	if res.OriginalSize > 0 {
		res.Ratio = float64(res.Saved) / float64(res.OriginalSize) * 100
	}
	return res
}

// stripMetadata removes Info dictionary entries and the catalog's XMP
// stream reference. pdfcpu stamps its own Producer on write.
func stripMetadata(ctx *model.Context) {
	if ctx.Info != nil {
		if info, err := ctx.DereferenceDict(*ctx.Info); err == nil && info != nil {
			for _, k := range infoKeys {
				info.Delete(k)
			}
		}
	}
	if root, err := ctx.Catalog(); err == nil && root != nil {
		root.Delete("Metadata")
	}
}
