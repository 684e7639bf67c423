package pdfops

import (
	"bytes"
	"context"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rmitchellscott/pdfdesk/internal/logging"
)

// Page is one single-page document produced by Split.
type Page struct {
	// Number is 1-based.
	Number int
	Data   []byte
}

// Split produces one single-page document per page, in page order.
func Split(ctx context.Context, in Input, fn ProgressFunc) ([]Page, error) {
	const op = "split"
	p := newProgress(fn)
	p.report(0)

	n, err := PageCount(in)
	if err != nil {
		return nil, withOp(op, err)
	}
	if n == 0 {
		return nil, &OpError{Op: op, Kind: KindCorrupt, Name: in.Name, Err: errNoPages}
	}

	conf := newConfig()
	pages := make([]Page, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := api.Trim(in.reader(), &buf, []string{strconv.Itoa(i)}, conf); err != nil {
			return nil, opErr(op, err)
		}
		pages = append(pages, Page{Number: i, Data: buf.Bytes()})
		p.step(i, n, 0, 100)
	}
	logging.Logf("[SPLIT] Split %s into %d pages", in.Name, n)
	return pages, nil
}
