package security

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Category selects the MIME allow-list a file is checked against.
type Category string

const (
	CategoryPDF         Category = "pdf"
	CategoryImage       Category = "image"
	CategorySpreadsheet Category = "spreadsheet"
)

var allowedTypes = map[Category][]string{
	CategoryPDF:   {"application/pdf"},
	CategoryImage: {"image/jpeg", "image/png"},
	CategorySpreadsheet: {
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.ms-excel",
	},
}

// AllowedTypes returns a copy of the allow-list for c, or nil for an unknown
// category.
func AllowedTypes(c Category) []string {
	types, ok := allowedTypes[c]
	if !ok {
		return nil
	}
	return append([]string(nil), types...)
}

// ParseCategory maps a user supplied name to a Category. "excel" is accepted
// as an alias for spreadsheet.
func ParseCategory(s string) (Category, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pdf":
		return CategoryPDF, true
	case "image":
		return CategoryImage, true
	case "spreadsheet", "excel":
		return CategorySpreadsheet, true
	}
	return "", false
}

// ValidateMimeType reports whether the declared MIME type is on the
// allow-list for c. Only the self-reported type is consulted, so a renamed
// file carrying a forged type passes.
func ValidateMimeType(declared string, c Category) bool {
	types, ok := allowedTypes[c]
	if !ok {
		return false
	}
	return ValidateMimeTypeIn(declared, types)
}

// ValidateMimeTypeIn is ValidateMimeType against an explicit list.
func ValidateMimeTypeIn(declared string, allowed []string) bool {
	mt := normalizeMime(declared)
	if mt == "" {
		return false
	}
	for _, a := range allowed {
		if normalizeMime(a) == mt {
			return true
		}
	}
	return false
}

// DeclaredFile is anything that carries a user supplied name and MIME type.
type DeclaredFile interface {
	DeclaredName() string
	DeclaredType() string
}

// ValidateFiles partitions files into the ones whose declared type is
// allowed for c and the sanitized names of the rest.
func ValidateFiles[F DeclaredFile](files []F, c Category) (valid []F, rejected []string) {
	for _, f := range files {
		if ValidateMimeType(f.DeclaredType(), c) {
			valid = append(valid, f)
		} else {
			rejected = append(rejected, SanitizeFilename(f.DeclaredName()))
		}
	}
	return valid, rejected
}

// SniffMimeType detects the content type from the leading bytes of data.
// The result is advisory; acceptance is decided by the declared type.
func SniffMimeType(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	mt := mimetype.Detect(data)
	if mt == nil {
		return ""
	}
	return normalizeMime(mt.String())
}

// MatchesSniffed reports whether the declared type agrees with what the
// content looks like, following mimetype's alias table.
func MatchesSniffed(declared string, data []byte) bool {
	if len(data) == 0 {
		return false
	}
	mt := mimetype.Detect(data)
	return mt != nil && mt.Is(normalizeMime(declared))
}

func normalizeMime(s string) string {
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(strings.TrimSpace(s))
}
