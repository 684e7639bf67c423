package main

import (
	"fmt"

	"github.com/rmitchellscott/pdfdesk/internal/compressor"
	"github.com/rmitchellscott/pdfdesk/internal/pdfops"
	"github.com/rmitchellscott/pdfdesk/internal/security"
	"github.com/rmitchellscott/pdfdesk/internal/workspace"
	"github.com/spf13/cobra"
)

// maxCLIFiles bounds a single invocation the way MAX_PDF_FILES bounds a
// drop zone.
const maxCLIFiles = 200

var mergeCmd = &cobra.Command{
	Use:   "merge <a.pdf> <b.pdf> [more.pdf...]",
	Short: "Join PDFs in the order given",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := loadInputs(cmd, args, security.CategoryPDF, maxCLIFiles)
		if err != nil {
			return err
		}
		data, err := pdfops.Merge(cmd.Context(), inputsOf(files), progressTo(cmd, "merging"))
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("name")
		_, err = writeOutput(cmd, name, data)
		return err
	},
}

var splitCmd = &cobra.Command{
	Use:   "split <file.pdf>",
	Short: "Write every page to its own PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := loadInputs(cmd, args, security.CategoryPDF, 1)
		if err != nil {
			return err
		}
		in := inputsOf(files)[0]
		pages, err := pdfops.Split(cmd.Context(), in, progressTo(cmd, "splitting"))
		if err != nil {
			return err
		}
		for _, p := range pages {
			if _, err := writeOutput(cmd, workspace.SplitName(in.Name, p.Number), p.Data); err != nil {
				return err
			}
		}
		return nil
	},
}

var compressCmd = &cobra.Command{
	Use:   "compress <file.pdf>",
	Short: "Rewrite a PDF more compactly",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := loadInputs(cmd, args, security.CategoryPDF, 1)
		if err != nil {
			return err
		}
		in := inputsOf(files)[0]
		res, err := pdfops.Compress(cmd.Context(), in, progressTo(cmd, "compressing"))
		if err != nil {
			return err
		}
		if gs, _ := cmd.Flags().GetBool("ghostscript"); gs {
			res, err = downsample(cmd, res)
			if err != nil {
				return err
			}
		}
		if _, err := writeOutput(cmd, workspace.CompressedName(in.Name), res.Data); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%d -> %d bytes (%.1f%% saved)\n", res.OriginalSize, res.CompressedSize, res.Ratio)
		return nil
	},
}

// downsample runs the rewritten document through Ghostscript and keeps
// whichever output is smaller.
func downsample(cmd *cobra.Command, res pdfops.CompressResult) (pdfops.CompressResult, error) {
	data, err := compressor.Compress(cmd.Context(), res.Data, compressor.OptionsFromEnv())
	if err != nil {
		return res, err
	}
	if int64(len(data)) >= res.CompressedSize {
		return res, nil
	}
	return pdfops.NewCompressResult(res.OriginalSize, data), nil
}

var imagesCmd = &cobra.Command{
	Use:   "images <a.png|a.jpg> [more...]",
	Short: "Place each image on its own A4 page",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orientation, _ := cmd.Flags().GetString("orientation")
		if orientation != string(pdfops.Portrait) && orientation != string(pdfops.Landscape) {
			return fmt.Errorf("orientation must be portrait or landscape, got %q", orientation)
		}
		files, err := loadInputs(cmd, args, security.CategoryImage, maxCLIFiles)
		if err != nil {
			return err
		}
		imgs := make([]pdfops.Image, len(files))
		for i, f := range files {
			imgs[i] = pdfops.Image{Name: f.DisplayName(), Data: f.Data}
		}
		data, err := pdfops.ImagesToPDF(cmd.Context(), imgs, pdfops.ParseOrientation(orientation), progressTo(cmd, "converting"))
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("name")
		_, err = writeOutput(cmd, name, data)
		return err
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract <file.pdf>",
	Short: "Extract the text of a PDF, page by page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := loadInputs(cmd, args, security.CategoryPDF, 1)
		if err != nil {
			return err
		}
		in := inputsOf(files)[0]
		text, err := pdfops.ExtractText(cmd.Context(), in, progressTo(cmd, "extracting"))
		if err != nil {
			return err
		}
		if stdout, _ := cmd.Flags().GetBool("stdout"); stdout {
			_, err = fmt.Fprint(cmd.OutOrStdout(), text)
			return err
		}
		_, err = writeOutput(cmd, workspace.TextName(in.Name), []byte(text))
		return err
	},
}

func init() {
	compressCmd.Flags().Bool("ghostscript", false, "also downsample images with Ghostscript (gs must be installed)")
	mergeCmd.Flags().String("name", workspace.MergedName, "output file name")
	imagesCmd.Flags().String("name", workspace.ImagesName, "output file name")
	imagesCmd.Flags().String("orientation", string(pdfops.Portrait), "page orientation: portrait or landscape")
	extractCmd.Flags().Bool("stdout", false, "print the text instead of writing a file")

	rootCmd.AddCommand(mergeCmd, splitCmd, compressCmd, imagesCmd, extractCmd)
}
