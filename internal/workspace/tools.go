package workspace

import (
	"github.com/rmitchellscott/pdfdesk/internal/security"
)

type Tool string

const (
	ToolMerge    Tool = "merge"
	ToolSplit    Tool = "split"
	ToolCompress Tool = "compress"
	ToolImages   Tool = "images"
	ToolExtract  Tool = "extract"
	ToolEdit     Tool = "edit"
)

// Spec describes what a tool accepts.
type Spec struct {
	Tool     Tool
	Category security.Category
	// MinRun is how many files must be selected before the tool can run.
	MinRun int
	// Multi tools accumulate files across selections; single-file tools
	// replace the current file.
	Multi bool
	// AutoStart tools begin processing as soon as a valid file is accepted.
	AutoStart bool
}

var specs = map[Tool]Spec{
	ToolMerge:    {Tool: ToolMerge, Category: security.CategoryPDF, MinRun: 2, Multi: true},
	ToolSplit:    {Tool: ToolSplit, Category: security.CategoryPDF, MinRun: 1},
	ToolCompress: {Tool: ToolCompress, Category: security.CategoryPDF, MinRun: 1},
	ToolImages:   {Tool: ToolImages, Category: security.CategoryImage, MinRun: 1, Multi: true},
	ToolExtract:  {Tool: ToolExtract, Category: security.CategoryPDF, MinRun: 1, AutoStart: true},
	ToolEdit:     {Tool: ToolEdit, Category: security.CategoryPDF, MinRun: 1},
}

// Lookup returns the spec for a tool name.
func Lookup(name string) (Spec, bool) {
	s, ok := specs[Tool(name)]
	return s, ok
}

// Tools lists every tool in a stable order.
func Tools() []Spec {
	order := []Tool{ToolMerge, ToolSplit, ToolCompress, ToolImages, ToolExtract, ToolEdit}
	out := make([]Spec, 0, len(order))
	for _, t := range order {
		out = append(out, specs[t])
	}
	return out
}
