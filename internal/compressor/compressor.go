// Package compressor shells out to Ghostscript for lossy image
// downsampling, which the pdfcpu rewrite in pdfops does not do.
package compressor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rmitchellscott/pdfdesk/internal/config"
)

// ExecCommand is exec.CommandContext by default, but can be overridden in tests.
var ExecCommand = exec.CommandContext

// LookPath is exec.LookPath by default, but can be overridden in tests.
var LookPath = exec.LookPath

var ErrNotInstalled = errors.New("ghostscript (gs) not found in PATH")

// Options map to -dCompatibilityLevel and -dPDFSETTINGS.
type Options struct {
	Compat   string
	Settings string
}

// OptionsFromEnv reads GS_COMPAT and GS_SETTINGS.
func OptionsFromEnv() Options {
	return Options{
		Compat:   config.Get("GS_COMPAT", "1.4"),
		Settings: config.Get("GS_SETTINGS", "/ebook"),
	}
}

// Available reports whether gs can be run.
func Available() bool {
	_, err := LookPath("gs")
	return err == nil
}

// Compress runs data through Ghostscript's pdfwrite device and returns the
// rewritten document.
func Compress(ctx context.Context, data []byte, opts Options) ([]byte, error) {
	if !Available() {
		return nil, ErrNotInstalled
	}
	dir, err := os.MkdirTemp("", "pdfdesk-gs-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.pdf")
	out := filepath.Join(dir, "out.pdf")
	if err := os.WriteFile(in, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write input: %w", err)
	}

	args := []string{
		"-sDEVICE=pdfwrite",
		fmt.Sprintf("-dCompatibilityLevel=%s", opts.Compat),
		fmt.Sprintf("-dPDFSETTINGS=%s", opts.Settings),
		"-dNOPAUSE", "-dBATCH", "-dQUIET", "-dSAFER",
		fmt.Sprintf("-sOutputFile=%s", out),
		in,
	}
	cmd := ExecCommand(ctx, "gs", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("gs failed: %w: %s", err, output)
	}
	result, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("gs produced no output: %w", err)
	}
	return result, nil
}
