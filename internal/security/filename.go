package security

import (
	"strings"
	"unicode"
)

const (
	// MaxFilenameLength is the longest name SanitizeFilename returns, in runes.
	MaxFilenameLength = 100
	// UnnamedFile replaces names that sanitize to nothing.
	UnnamedFile = "unnamed-file"

	maxExtensionLength = 16
	forbiddenChars     = "<>\"'`/\\&#;=(){}[]|^$%@!?"
)

// SanitizeFilename makes a user supplied name safe to interpolate into UI
// text or a Content-Disposition header. It strips markup-significant
// characters, collapses whitespace, trims, and truncates to
// MaxFilenameLength while keeping the extension. It is idempotent.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	space := false
	for _, r := range name {
		switch {
		case strings.ContainsRune(forbiddenChars, r):
			continue
		case unicode.IsSpace(r):
			space = true
			continue
		case unicode.IsControl(r) || r == unicode.ReplacementChar:
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}

	out := []rune(b.String())
	if len(out) > MaxFilenameLength {
		out = truncateKeepingExt(out)
	}
	if len(out) == 0 {
		return UnnamedFile
	}
	return string(out)
}

func truncateKeepingExt(name []rune) []rune {
	ext := extension(name)
	if ext == nil {
		return []rune(strings.TrimRightFunc(string(name[:MaxFilenameLength]), unicode.IsSpace))
	}
	keep := MaxFilenameLength - len(ext) - 1
	base := strings.TrimRightFunc(string(name[:keep]), unicode.IsSpace)
	return []rune(base + "." + string(ext))
}

// extension returns the runes after the last dot, or nil when the name has
// no usable extension.
func extension(name []rune) []rune {
	dot := -1
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			dot = i
			break
		}
	}
	if dot <= 0 || dot == len(name)-1 {
		return nil
	}
	ext := name[dot+1:]
	if len(ext) > maxExtensionLength {
		return nil
	}
	for _, r := range ext {
		if unicode.IsSpace(r) {
			return nil
		}
	}
	return ext
}

// DownloadName sanitizes name and makes sure it ends in ext (".pdf").
func DownloadName(name, ext string) string {
	clean := SanitizeFilename(name)
	if ext == "" || strings.HasSuffix(strings.ToLower(clean), strings.ToLower(ext)) {
		return clean
	}
	if dot := strings.LastIndexByte(clean, '.'); dot > 0 {
		clean = clean[:dot]
	}
	return SanitizeFilename(clean + ext)
}
