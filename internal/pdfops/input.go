// Package pdfops holds the document operations behind every workspace tool:
// merge, split, image conversion, compression, text extraction and
// annotation baking. Operations work on in-memory bytes, report progress
// through a ProgressFunc, and return *OpError on failure.
package pdfops

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Input is one document to operate on.
type Input struct {
	Name string
	Data []byte
}

func (in Input) reader() *bytes.Reader { return bytes.NewReader(in.Data) }

func newConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// ErrEncrypted is the cause of a KindEncrypted error raised for documents
// that open without a password but carry an encryption dictionary.
var ErrEncrypted = errors.New("document is encrypted")

// load reads and validates a document. Encrypted documents are refused
// even when pdfcpu could open them with an empty user password, since
// rewriting them would drop their permission restrictions.
func load(op, name string, data []byte, conf *model.Configuration) (*model.Context, error) {
	if len(data) == 0 {
		return nil, &OpError{Op: op, Kind: KindCorrupt, Name: name, Err: fmt.Errorf("empty document")}
	}
	pctx, err := api.ReadAndValidate(bytes.NewReader(data), conf)
	if err != nil {
		return nil, readErr(op, name, err)
	}
	if pctx.Encrypt != nil {
		return nil, &OpError{Op: op, Kind: KindEncrypted, Name: name, Err: ErrEncrypted}
	}
	return pctx, nil
}

// PageCount returns the number of pages in a document.
func PageCount(in Input) (int, error) {
	pctx, err := load("page count", in.Name, in.Data, newConfig())
	if err != nil {
		return 0, err
	}
	return pctx.PageCount, nil
}

// PageSizes returns each page's media box size in points.
func PageSizes(in Input) ([]types.Dim, error) {
	const op = "page dims"
	pctx, err := load(op, in.Name, in.Data, newConfig())
	if err != nil {
		return nil, err
	}
	dims, err := pctx.PageDims()
	if err != nil {
		return nil, readErr(op, in.Name, err)
	}
	if len(dims) != pctx.PageCount {
		return nil, &OpError{Op: op, Kind: KindCorrupt, Name: in.Name, Err: fmt.Errorf("corrupt page dimensions")}
	}
	return dims, nil
}

// Validate loads and validates a document without changing it.
func Validate(in Input) error {
	_, err := load("validate", in.Name, in.Data, newConfig())
	return err
}
