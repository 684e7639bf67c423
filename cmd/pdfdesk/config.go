package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rmitchellscott/pdfdesk/internal/settings"
	"github.com/rmitchellscott/pdfdesk/internal/version"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage stored settings",
}

var setAPIKeyCmd = &cobra.Command{
	Use:   "set-api-key [key]",
	Short: "Store the Gemini API key used by doctor and chat",
	Long: `Stores the key in the settings database. Without an argument the key is
read from the terminal without echo, or from stdin when it is not a
terminal. An empty key removes the stored one.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var key string
		if len(args) == 1 {
			key = args[0]
		} else {
			var err error
			if key, err = promptKey(cmd); err != nil {
				return err
			}
		}

		store, closeDB, err := openSettings(cmd)
		if err != nil {
			return err
		}
		defer closeDB()
		if err := store.SaveAPIKey(cmd.Context(), key); err != nil {
			return err
		}
		if strings.TrimSpace(key) == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "API key removed")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "API key saved (%s)\n", settings.Mask(strings.TrimSpace(key)))
		return nil
	},
}

var showAPIKeyCmd = &cobra.Command{
	Use:   "show-api-key",
	Short: "Show whether a Gemini API key is stored",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeDB, err := openSettings(cmd)
		if err != nil {
			return err
		}
		defer closeDB()
		key, err := store.APIKey(cmd.Context())
		if err != nil {
			return err
		}
		if key == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "no API key stored")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), settings.Mask(key))
		return nil
	},
}

func promptKey(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if cmd.InOrStdin() == os.Stdin && term.IsTerminal(fd) {
		fmt.Fprint(cmd.ErrOrStderr(), "Gemini API key: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read key: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	return strings.TrimSpace(line), nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of pdfdesk",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String())
	},
}

func init() {
	configCmd.PersistentFlags().String("db", defaultDBPath(), "settings database")
	configCmd.AddCommand(setAPIKeyCmd, showAPIKeyCmd)
	rootCmd.AddCommand(configCmd, versionCmd)
}
