package pdfops

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rmitchellscott/pdfdesk/internal/annotation"
	"github.com/rmitchellscott/pdfdesk/internal/logging"
)

// BakeFont is the font text annotations are drawn in.
const BakeFont = "Helvetica"

// Bake draws annotations onto their pages and returns the new document.
// Images that cannot be embedded, and annotations aimed at pages the
// document does not have, are skipped with a warning.
func Bake(ctx context.Context, in Input, notes []annotation.Annotation, fn ProgressFunc) ([]byte, error) {
	const op = "edit"
	p := newProgress(fn)
	p.report(0)

	dims, err := PageSizes(in)
	if err != nil {
		return nil, withOp(op, err)
	}
	if len(notes) == 0 {
		p.report(100)
		return append([]byte(nil), in.Data...), nil
	}

	marks := make(map[int][]*model.Watermark)
	placed := 0
	for i, a := range notes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if a.Page < 0 || a.Page >= len(dims) {
			logging.Warnf("[EDIT] Skipping annotation %s: page %d of %d", a.ID, a.Page+1, len(dims))
			continue
		}
		wm, err := watermarkFor(a, dims[a.Page])
		if err != nil {
			logging.Warnf("[EDIT] Could not embed %s annotation %s: %v", a.Kind, a.ID, err)
			continue
		}
		marks[a.Page+1] = append(marks[a.Page+1], wm)
		placed++
		p.step(i+1, len(notes), 0, 70)
	}

	if placed == 0 {
		p.report(100)
		return append([]byte(nil), in.Data...), nil
	}

	var out bytes.Buffer
	if err := api.AddWatermarksSliceMap(in.reader(), &out, marks, newConfig()); err != nil {
		return nil, opErr(op, err)
	}
	p.report(100)
	logging.Logf("[EDIT] Baked %d of %d annotations into %s", placed, len(notes), in.Name)
	return out.Bytes(), nil
}

func watermarkFor(a annotation.Annotation, dim types.Dim) (*model.Watermark, error) {
	pl := annotation.ToPageSpace(a, dim.Width, dim.Height)
	if !a.Kind.IsImage() {
		return textMark(a.Text, int(math.Round(a.EffectiveFontSize())), pl.X, pl.Y)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(a.Image))
	if err != nil {
		return nil, err
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("image has no pixels")
	}
	x, y, scale := fitInBox(pl, float64(cfg.Width), float64(cfg.Height))
	desc := fmt.Sprintf("position:bl, offset:%.2f %.2f, scalefactor:%.4f abs, rotation:0, opacity:1", x, y, scale)
	return api.ImageWatermarkForReader(bytes.NewReader(a.Image), desc, true, false, types.POINTS)
}

// fitInBox scales an image uniformly to fit its box and pins it to the
// box's top left corner. pdfcpu watermarks cannot stretch one axis.
func fitInBox(box annotation.Placement, imgW, imgH float64) (x, y, scale float64) {
	scale = math.Min(box.W/imgW, box.H/imgH)
	return box.X, box.Y + box.H - imgH*scale, scale
}

func textMark(text string, points int, x, y float64) (*model.Watermark, error) {
	desc := fmt.Sprintf("fontname:%s, points:%d, position:bl, offset:%.2f %.2f, scalefactor:1 abs, rotation:0, fillcolor:#000000, opacity:1",
		BakeFont, points, x, y)
	return api.TextWatermark(text, desc, true, false, types.POINTS)
}
