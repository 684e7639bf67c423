package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rmitchellscott/pdfdesk/internal/ai"
	"github.com/rmitchellscott/pdfdesk/internal/config"
	"github.com/rmitchellscott/pdfdesk/internal/database"
	"github.com/rmitchellscott/pdfdesk/internal/pdfops"
	"github.com/rmitchellscott/pdfdesk/internal/security"
	"github.com/rmitchellscott/pdfdesk/internal/settings"
	"github.com/spf13/cobra"
)

// defaultDBPath is where the CLI keeps its settings when --db is not given.
func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "pdfdesk.db"
	}
	return filepath.Join(dir, "pdfdesk", "pdfdesk.db")
}

// openSettings opens the CLI settings database, creating it if needed.
func openSettings(cmd *cobra.Command) (*settings.Store, func(), error) {
	path, _ := cmd.Flags().GetString("db")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, nil, fmt.Errorf("failed to create settings directory: %w", err)
	}
	db, err := database.OpenSQLiteFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open settings %s: %w", path, err)
	}
	store := settings.NewStore(db, config.Get("SETTINGS_SECRET", ""))
	return store, func() { _ = database.Close(db) }, nil
}

// resolveKey prefers --api-key, then GEMINI_API_KEY, then the stored key.
func resolveKey(cmd *cobra.Command) (string, error) {
	if k, _ := cmd.Flags().GetString("api-key"); k != "" {
		return k, nil
	}
	if k := config.Get("GEMINI_API_KEY", ""); k != "" {
		return k, nil
	}
	store, closeDB, err := openSettings(cmd)
	if err != nil {
		return "", err
	}
	defer closeDB()
	k, err := store.APIKey(cmd.Context())
	if err != nil {
		return "", err
	}
	if k == "" {
		return "", fmt.Errorf("%w: run `pdfdesk config set-api-key` or set GEMINI_API_KEY", ai.ErrMissingAPIKey)
	}
	return k, nil
}

func newAIClient() (*ai.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return ai.NewClient(cfg.AI, nil), nil
}

// documentText reads a PDF's text or a plain text file. "-" is stdin.
func documentText(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		return readAllFrom(cmd.InOrStdin())
	}
	mb, _ := cmd.Flags().GetInt64("max-upload-mb")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if int64(len(data)) > mb<<20 {
		return "", fmt.Errorf("%s is larger than %d MB", path, mb)
	}
	if security.SniffMimeType(data) == "application/pdf" {
		return pdfops.ExtractPlainText(cmd.Context(), pdfops.Input{Name: filepath.Base(path), Data: data})
	}
	return string(data), nil
}

var doctorCmd = &cobra.Command{
	Use:   "doctor <file.pdf|file.txt|->",
	Short: "Review a document for grammar, style, clarity and gaps",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := documentText(cmd, args[0])
		if err != nil {
			return err
		}
		key, err := resolveKey(cmd)
		if err != nil {
			return err
		}
		client, err := newAIClient()
		if err != nil {
			return err
		}
		a, err := client.Doctor(cmd.Context(), key, text)
		if err != nil {
			return err
		}

		if asPDF, _ := cmd.Flags().GetBool("pdf"); asPDF {
			data, err := pdfops.RenderText(cmd.Context(), a.Report())
			if err != nil {
				return err
			}
			name := "stdin_doctor.pdf"
			if args[0] != "-" {
				name = baseName(args[0]) + "_doctor.pdf"
			}
			_, err = writeOutput(cmd, name, data)
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(a)
		}
		if a.LimitedText {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning: very little text was found, results may be limited")
		}
		fmt.Fprintf(out, "Summary: %s\n", a.Summary)
		for i, is := range a.Issues {
			fmt.Fprintf(out, "\n%d. [%s] %s\n   -> %s\n", i+1, is.Type, is.Text, is.Suggestion)
		}
		if a.ImprovedContent != "" {
			fmt.Fprintf(out, "\nImproved version:\n%s\n", a.ImprovedContent)
		}
		return nil
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat <message...>",
	Short: "Ask the assistant a question, optionally about a document",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var doc string
		if path, _ := cmd.Flags().GetString("document"); path != "" {
			var err error
			if doc, err = documentText(cmd, path); err != nil {
				return err
			}
		}
		key, err := resolveKey(cmd)
		if err != nil {
			return err
		}
		client, err := newAIClient()
		if err != nil {
			return err
		}
		reply, err := client.Chat(cmd.Context(), key, doc, strings.Join(args, " "))
		if err != nil {
			return err
		}
		if asHTML, _ := cmd.Flags().GetBool("html"); asHTML {
			if reply, err = ai.RenderHTML(reply); err != nil {
				return err
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(reply))
		return nil
	},
}

// friendlyAIError adds a hint to errors a user can act on.
func friendlyAIError(err error) error {
	var se *ai.HTTPStatusError
	switch {
	case errors.As(err, &se) && (se.StatusCode == 400 || se.StatusCode == 401 || se.StatusCode == 403):
		return fmt.Errorf("%w (check the API key)", err)
	case errors.Is(err, ai.ErrRateLimited), errors.Is(err, ai.ErrUnavailable):
		return fmt.Errorf("%w (try again shortly)", err)
	}
	return err
}

func init() {
	for _, c := range []*cobra.Command{doctorCmd, chatCmd} {
		c.Flags().String("api-key", "", "Gemini API key for this call")
		c.Flags().String("db", defaultDBPath(), "settings database")
		wrapped := c.RunE
		c.RunE = func(cmd *cobra.Command, args []string) error {
			return friendlyAIError(wrapped(cmd, args))
		}
	}
	doctorCmd.Flags().Bool("json", false, "print the analysis as JSON")
	doctorCmd.Flags().Bool("pdf", false, "write the analysis to a PDF report instead")
	chatCmd.Flags().String("document", "", "PDF or text file to ask about, - for stdin")
	chatCmd.Flags().Bool("html", false, "render the reply as HTML")

	rootCmd.AddCommand(doctorCmd, chatCmd)
}
