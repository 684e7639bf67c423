package pdfops

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rmitchellscott/pdfdesk/internal/logging"
)

type Orientation string

const (
	Portrait  Orientation = "portrait"
	Landscape Orientation = "landscape"
)

// A4 in points, and the blank border kept around placed images.
const (
	A4Width    = 595.28
	A4Height   = 841.89
	PageMargin = 20.0
)

// ParseOrientation accepts "portrait" or "landscape"; anything else is
// portrait.
func ParseOrientation(s string) Orientation {
	if Orientation(s) == Landscape {
		return Landscape
	}
	return Portrait
}

// PageSize returns the A4 page size for o.
func (o Orientation) PageSize() (w, h float64) {
	if o == Landscape {
		return A4Height, A4Width
	}
	return A4Width, A4Height
}

// Image is one picture to place on its own page.
type Image struct {
	Name string
	Data []byte
}

// Fit is where an image lands on a page, in points from the lower left.
type Fit struct {
	Scale         float64
	X, Y          float64
	Width, Height float64
}

// FitImage scales an image of imgW x imgH to fit inside the page less the
// margin, never enlarging it, and centres it.
func FitImage(imgW, imgH, pageW, pageH, margin float64) Fit {
	availW := pageW - 2*margin
	availH := pageH - 2*margin
	if imgW <= 0 || imgH <= 0 || availW <= 0 || availH <= 0 {
		return Fit{}
	}
	scale := math.Min(math.Min(availW/imgW, availH/imgH), 1)
	w, h := imgW*scale, imgH*scale
	return Fit{
		Scale:  scale,
		X:      (pageW - w) / 2,
		Y:      (pageH - h) / 2,
		Width:  w,
		Height: h,
	}
}

// ImagesToPDF builds one A4 page per image, in order. All pages are added
// to a single document that is written once at the end.
func ImagesToPDF(ctx context.Context, images []Image, o Orientation, fn ProgressFunc) ([]byte, error) {
	const op = "images"
	if len(images) == 0 {
		return nil, invalidInput(op, "no images")
	}
	p := newProgress(fn)
	p.report(0)

	pageW, pageH := o.PageSize()
	dim := &types.Dim{Width: pageW, Height: pageH}
	conf := newConfig()
	conf.Cmd = model.IMPORTIMAGES

	doc, err := pdfcpu.CreateContextWithXRefTable(conf, dim)
	if err != nil {
		return nil, opErr(op, err)
	}
	pagesRef, err := doc.Pages()
	if err != nil {
		return nil, opErr(op, err)
	}
	pages, err := doc.DereferenceDict(*pagesRef)
	if err != nil {
		return nil, opErr(op, err)
	}

	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cfg, format, err := image.DecodeConfig(bytes.NewReader(img.Data))
		if err != nil {
			return nil, &OpError{Op: op, Kind: KindUnsupported, Name: img.Name, Err: fmt.Errorf("cannot read image: %w", err)}
		}
		fit := FitImage(float64(cfg.Width), float64(cfg.Height), pageW, pageH, PageMargin)

		imp := pdfcpu.DefaultImportConfig()
		imp.PageDim = dim
		imp.PageSize = ""
		imp.UserDim = true
		imp.Pos = types.Center
		imp.Scale = fit.Scale
		imp.ScaleAbs = true
		imp.InpUnit = types.POINTS

		refs, err := pdfcpu.NewPagesForImage(doc.XRefTable, bytes.NewReader(img.Data), pagesRef, imp)
		if err != nil {
			return nil, &OpError{Op: op, Kind: KindUnsupported, Name: img.Name, Err: err}
		}
		for _, ref := range refs {
			if err := doc.SetValid(*ref); err != nil {
				return nil, opErr(op, err)
			}
			if err := model.AppendPageTree(ref, 1, pages); err != nil {
				return nil, opErr(op, err)
			}
			doc.PageCount++
		}
		logging.Debugf("[IMAGES] Page %d: %s (%s %dx%d, scale %.3f)", i+1, img.Name, format, cfg.Width, cfg.Height, fit.Scale)
		p.step(i+1, len(images), 0, 90)
	}

	var out bytes.Buffer
	if err := api.WriteContext(doc, &out); err != nil {
		return nil, opErr(op, err)
	}
	p.report(100)
	logging.Logf("[IMAGES] Converted %d images to a %s PDF", len(images), o)
	return out.Bytes(), nil
}
