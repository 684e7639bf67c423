// Command pdfdesk runs the workspace tools and the AI assistant from the
// command line against local files.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rmitchellscott/pdfdesk/internal/config"
	"github.com/rmitchellscott/pdfdesk/internal/logging"
	"github.com/rmitchellscott/pdfdesk/internal/pdfops"
	"github.com/rmitchellscott/pdfdesk/internal/security"
	"github.com/rmitchellscott/pdfdesk/internal/upload"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pdfdesk",
	Short: "Merge, split, compress, convert, annotate and review PDFs",
	Long: `pdfdesk runs the same document tools as the pdfdesk server on local
files: merge, split, compress, images-to-PDF, text extraction and
annotation. The doctor and chat commands use the configured Gemini key.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		quiet, _ := cmd.Flags().GetBool("quiet")
		level := config.Get("LOG_LEVEL", "warn")
		if quiet {
			level = "error"
		}
		logging.Setup(os.Stderr, config.Get("LOG_FORMAT", "text"), level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("out", "o", ".", "directory to write results to")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "suppress progress output")
	rootCmd.PersistentFlags().Int64("max-upload-mb", 100, "largest input file accepted, in MB")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadInputs reads paths and validates them against c the way an upload is.
// Any rejected file fails the command.
func loadInputs(cmd *cobra.Command, paths []string, c security.Category, maxFiles int) ([]upload.UploadedFile, error) {
	mb, _ := cmd.Flags().GetInt64("max-upload-mb")
	maxBytes := mb << 20

	files := make([]upload.UploadedFile, 0, len(paths))
	for _, p := range paths {
		f, err := upload.FromPath(p, maxBytes)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	res, err := upload.Accept(files, c, upload.Limits{MaxFiles: maxFiles, MaxBytes: maxBytes})
	if err != nil {
		return nil, err
	}
	if len(res.Rejected) > 0 {
		return nil, fmt.Errorf("not a valid %s file: %s", c, strings.Join(res.Rejected, ", "))
	}
	return res.Accepted, nil
}

func inputsOf(files []upload.UploadedFile) []pdfops.Input {
	out := make([]pdfops.Input, len(files))
	for i, f := range files {
		out[i] = pdfops.Input{Name: f.DisplayName(), Data: f.Data}
	}
	return out
}

// writeOutput stores data under the --out directory. name is a generated
// file name and must not escape it.
func writeOutput(cmd *cobra.Command, name string, data []byte) (string, error) {
	dir, _ := cmd.Flags().GetString("out")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path, err := security.SafeJoin(dir, security.SanitizeFilename(name))
	if err != nil {
		return "", fmt.Errorf("invalid output name %q: %w", name, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return path, nil
}

// progressTo prints whole-percent progress on one line of w.
func progressTo(cmd *cobra.Command, label string) pdfops.ProgressFunc {
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		return nil
	}
	w := cmd.ErrOrStderr()
	return func(pct int) {
		fmt.Fprintf(w, "\r%s %3d%%", label, pct)
		if pct >= 100 {
			fmt.Fprintln(w)
		}
	}
}

func baseName(name string) string {
	return strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
}

func readAllFrom(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	return string(b), err
}
