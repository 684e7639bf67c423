package pdfops

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies why an operation failed so callers can pick a message.
type Kind int

const (
	KindUnknown Kind = iota
	// KindEncrypted means the document needs a password.
	KindEncrypted
	// KindCorrupt means the document could not be parsed.
	KindCorrupt
	// KindUnsupported means the input is valid but not something the
	// operation handles, such as an image format pdfcpu cannot embed.
	KindUnsupported
	// KindInvalidInput means the caller passed the wrong number or type of
	// inputs.
	KindInvalidInput
)

func (k Kind) String() string {
	switch k {
	case KindEncrypted:
		return "encrypted"
	case KindCorrupt:
		return "corrupt"
	case KindUnsupported:
		return "unsupported"
	case KindInvalidInput:
		return "invalid_input"
	default:
		return "unknown"
	}
}

// OpError is returned by every operation in this package.
type OpError struct {
	Op   string
	Kind Kind
	// Name is the input the failure is attributed to, if any.
	Name string
	Err  error
}

func (e *OpError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Name, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first OpError in err's chain.
func KindOf(err error) Kind {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return KindUnknown
}

var errNoPages = errors.New("document has no pages")

var (
	encryptedMarkers = []string{"encrypt", "password", "decrypt"}
	corruptMarkers   = []string{
		"invalid", "parse", "corrupt", "malformed", "xref", "eof",
		"header", "trailer", "not a pdf", "unexpected", "syntax",
	}
)

// Classify maps a library error to a Kind by its message. pdfcpu and
// ledongthuc/pdf do not export typed errors for these cases.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Kind
	}
	msg := strings.ToLower(err.Error())
	for _, m := range encryptedMarkers {
		if strings.Contains(msg, m) {
			return KindEncrypted
		}
	}
	for _, m := range corruptMarkers {
		if strings.Contains(msg, m) {
			return KindCorrupt
		}
	}
	return KindUnknown
}

// readErr wraps a failure to load an input. Anything that stops a document
// from loading and is not a password problem is treated as corrupt.
func readErr(op, name string, err error) error {
	if ctxErr := contextErr(err); ctxErr != nil {
		return ctxErr
	}
	kind := Classify(err)
	if kind != KindEncrypted {
		kind = KindCorrupt
	}
	return &OpError{Op: op, Kind: kind, Name: name, Err: err}
}

// opErr wraps a failure after inputs were loaded.
func opErr(op string, err error) error {
	if ctxErr := contextErr(err); ctxErr != nil {
		return ctxErr
	}
	return &OpError{Op: op, Kind: Classify(err), Err: err}
}

func invalidInput(op, format string, args ...any) error {
	return &OpError{Op: op, Kind: KindInvalidInput, Err: fmt.Errorf(format, args...)}
}

func contextErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
