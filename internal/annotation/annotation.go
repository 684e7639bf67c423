// Package annotation models the overlays a user places on a PDF page in the
// editor and converts them into PDF user space for baking.
//
// Positions are percentages of the rendered page with the origin at the top
// left, as the editor reports them. PDF user space has its origin at the
// bottom left, so the vertical axis is flipped on conversion.
package annotation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/vincent-petithory/dataurl"
)

type Kind string

const (
	KindText      Kind = "text"
	KindSignature Kind = "signature"
	KindImage     Kind = "image"
)

const (
	DefaultFontSize = 14
	// DefaultExtent is the width and height, in percent, of an image
	// annotation that has none.
	DefaultExtent = 100
	// MaxPosition is the largest X or Y the editor allows while dragging,
	// which keeps a handle on the page.
	MaxPosition = 90
)

var (
	ErrInvalidKind  = errors.New("invalid annotation kind")
	ErrMissingText  = errors.New("text annotation needs text")
	ErrMissingImage = errors.New("image annotation needs image data")
	ErrInvalidImage = errors.New("image must be a PNG or JPEG data URL")
	ErrInvalidPage  = errors.New("page index must not be negative")
	ErrOutOfRange   = errors.New("position and size must be within 0-100 percent")
)

// Annotation is one overlay. Page is 0-based. Width and Height are
// percentages of the page and only apply to signatures and images, which
// both carry PNG or JPEG bytes.
type Annotation struct {
	ID       string  `json:"id"`
	Kind     Kind    `json:"type"`
	Page     int     `json:"page"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width,omitempty"`
	Height   float64 `json:"height,omitempty"`
	Text     string  `json:"content,omitempty"`
	FontSize float64 `json:"fontSize,omitempty"`
	Image    []byte  `json:"-"`
	// ImageType is the MIME type of Image.
	ImageType string `json:"-"`
}

// Placement is an annotation's box in PDF points, bottom-left origin.
// For images (X, Y) is the lower left corner; for text it is the baseline
// start.
type Placement struct {
	X, Y, W, H float64
}

// Clamp limits a drag position to [0, MaxPosition].
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > MaxPosition {
		return MaxPosition
	}
	return v
}

// ToPageSpace converts a to PDF points on a page of the given size.
// x = X% of the width, y = height minus Y% of the height; an image hangs
// down from y so its top edge sits where the user dropped it.
func ToPageSpace(a Annotation, pageW, pageH float64) Placement {
	x := a.X / 100 * pageW
	y := pageH - a.Y/100*pageH
	if !a.Kind.IsImage() {
		return Placement{X: x, Y: y}
	}
	w := extent(a.Width) / 100 * pageW
	h := extent(a.Height) / 100 * pageH
	return Placement{X: x, Y: y - h, W: w, H: h}
}

func extent(v float64) float64 {
	if v <= 0 {
		return DefaultExtent
	}
	return v
}

// IsImage reports whether annotations of this kind carry image bytes.
func (k Kind) IsImage() bool { return k == KindSignature || k == KindImage }

// EffectiveFontSize is FontSize or the default when unset.
func (a Annotation) EffectiveFontSize() float64 {
	if a.FontSize <= 0 {
		return DefaultFontSize
	}
	return a.FontSize
}

// Validate checks the fields that the struct tags cannot.
func (a Annotation) Validate() error {
	if a.Page < 0 {
		return ErrInvalidPage
	}
	for _, v := range []float64{a.X, a.Y, a.Width, a.Height} {
		if v < 0 || v > 100 {
			return ErrOutOfRange
		}
	}
	switch a.Kind {
	case KindText:
		if strings.TrimSpace(a.Text) == "" {
			return ErrMissingText
		}
	case KindSignature, KindImage:
		if len(a.Image) == 0 {
			return ErrMissingImage
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, a.Kind)
	}
	return nil
}

// Default boxes for new signatures and images, in percent of the page.
var defaultBoxes = map[Kind][2]float64{
	KindSignature: {25, 6},
	KindImage:     {30, 20},
}

// New builds an annotation with a fresh id at a clicked position. For
// signatures and images payload is a data URL; for text it is the text.
func New(kind Kind, page int, x, y float64, payload string) (Annotation, error) {
	a := Annotation{
		ID:   uuid.NewString(),
		Kind: kind,
		Page: page,
		X:    x,
		Y:    y,
	}
	switch kind {
	case KindSignature, KindImage:
		data, mt, err := DecodeImage(payload)
		if err != nil {
			return Annotation{}, err
		}
		a.Image, a.ImageType = data, mt
		box := defaultBoxes[kind]
		a.Width, a.Height = box[0], box[1]
	case KindText:
		a.Text = payload
		a.FontSize = DefaultFontSize
	default:
		return Annotation{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if err := a.Validate(); err != nil {
		return Annotation{}, err
	}
	return a, nil
}

// DecodeImage decodes a PNG or JPEG data URL.
func DecodeImage(s string) ([]byte, string, error) {
	du, err := dataurl.DecodeString(s)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	mt := du.ContentType()
	if mt != "image/png" && mt != "image/jpeg" {
		return nil, "", fmt.Errorf("%w: got %s", ErrInvalidImage, mt)
	}
	if len(du.Data) == 0 {
		return nil, "", ErrMissingImage
	}
	return du.Data, mt, nil
}
