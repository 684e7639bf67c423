package pdfops

import (
	"bytes"
	"context"
	"errors"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rmitchellscott/pdfdesk/internal/logging"
)

// Merge concatenates every page of every input, in input order. Each input
// is appended as soon as it is read, and progress is reported after each
// append. One unreadable input fails the whole merge.
func Merge(ctx context.Context, inputs []Input, fn ProgressFunc) ([]byte, error) {
	const op = "merge"
	if len(inputs) < 2 {
		return nil, invalidInput(op, "need at least 2 documents, got %d", len(inputs))
	}
	p := newProgress(fn)
	p.report(0)

	conf := newConfig()
	conf.Cmd = model.MERGECREATE
	conf.CreateBookmarks = false

	var dest *model.Context
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, err := load(op, in.Name, in.Data, conf)
		if err != nil {
			logging.Warnf("[MERGE] Input %d (%s) rejected: %v", i+1, in.Name, err)
			return nil, err
		}
		if dest == nil {
			dest = src
			dest.EnsureVersionForWriting()
		} else {
			if dest.XRefTable.Version() < model.V20 && src.XRefTable.Version() == model.V20 {
				return nil, opErr(op, pdfcpu.ErrUnsupportedVersion)
			}
			if err := pdfcpu.MergeXRefTables(in.Name, src, dest, false, false); err != nil {
				return nil, opErr(op, err)
			}
		}
		p.step(i+1, len(inputs), 0, 90)
	}

	var out bytes.Buffer
	if err := api.WriteContext(dest, &out); err != nil {
		return nil, opErr(op, err)
	}
	p.report(100)
	logging.Logf("[MERGE] Merged %d documents (%d bytes)", len(inputs), out.Len())
	return out.Bytes(), nil
}

// withOp relabels an OpError produced by a helper with the caller's op.
func withOp(op string, err error) error {
	var oe *OpError
	if errors.As(err, &oe) {
		cp := *oe
		cp.Op = op
		return &cp
	}
	return err
}
