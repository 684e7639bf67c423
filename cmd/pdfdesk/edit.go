package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rmitchellscott/pdfdesk/internal/annotation"
	"github.com/rmitchellscott/pdfdesk/internal/pdfops"
	"github.com/rmitchellscott/pdfdesk/internal/security"
	"github.com/rmitchellscott/pdfdesk/internal/workspace"
	"github.com/spf13/cobra"
	"github.com/vincent-petithory/dataurl"
)

var editCmd = &cobra.Command{
	Use:   "edit <file.pdf>",
	Short: "Stamp text, signatures and images onto a PDF",
	Long: `Each overlay is PAGE:X:Y:VALUE. PAGE counts from 1; X and Y are
percentages of the page from its top left corner. VALUE is the text for
--text and a PNG or JPEG file for --signature and --image.`,
	Example: `  pdfdesk edit contract.pdf --text "1:10:85:Approved" --signature "2:60:80:sig.png"`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var notes []annotation.Annotation
		for kind, flag := range map[annotation.Kind]string{
			annotation.KindText:      "text",
			annotation.KindSignature: "signature",
			annotation.KindImage:     "image",
		} {
			values, _ := cmd.Flags().GetStringArray(flag)
			for _, v := range values {
				a, err := parseOverlay(kind, v, os.ReadFile)
				if err != nil {
					return fmt.Errorf("--%s %q: %w", flag, v, err)
				}
				notes = append(notes, a)
			}
		}
		if len(notes) == 0 {
			return fmt.Errorf("nothing to add: pass --text, --signature or --image")
		}

		files, err := loadInputs(cmd, args, security.CategoryPDF, 1)
		if err != nil {
			return err
		}
		in := inputsOf(files)[0]
		data, err := pdfops.Bake(cmd.Context(), in, notes, progressTo(cmd, "editing"))
		if err != nil {
			return err
		}
		_, err = writeOutput(cmd, workspace.EditedName(in.Name), data)
		return err
	},
}

// parseOverlay turns PAGE:X:Y:VALUE into an annotation. readFile loads
// image values.
func parseOverlay(kind annotation.Kind, v string, readFile func(string) ([]byte, error)) (annotation.Annotation, error) {
	parts := strings.SplitN(v, ":", 4)
	if len(parts) != 4 || parts[3] == "" {
		return annotation.Annotation{}, fmt.Errorf("want PAGE:X:Y:VALUE")
	}
	page, err := strconv.Atoi(parts[0])
	if err != nil || page < 1 {
		return annotation.Annotation{}, fmt.Errorf("page must be a number from 1")
	}
	x, errX := strconv.ParseFloat(parts[1], 64)
	y, errY := strconv.ParseFloat(parts[2], 64)
	if errX != nil || errY != nil {
		return annotation.Annotation{}, fmt.Errorf("x and y must be numbers")
	}

	payload := parts[3]
	if kind.IsImage() {
		data, err := readFile(payload)
		if err != nil {
			return annotation.Annotation{}, err
		}
		mt := security.SniffMimeType(data)
		if mt != "image/png" && mt != "image/jpeg" {
			return annotation.Annotation{}, annotation.ErrInvalidImage
		}
		payload = dataurl.New(data, mt).String()
	}
	return annotation.New(kind, page-1, x, y, payload)
}

func init() {
	editCmd.Flags().StringArray("text", nil, "text overlay, PAGE:X:Y:TEXT")
	editCmd.Flags().StringArray("signature", nil, "signature image, PAGE:X:Y:FILE")
	editCmd.Flags().StringArray("image", nil, "image overlay, PAGE:X:Y:FILE")

	rootCmd.AddCommand(editCmd)
}
