package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rmitchellscott/pdfdesk/internal/logging"
)

const (
	// DoctorMaxRunes bounds how much document text is sent for analysis.
	DoctorMaxRunes = 15000
	// LimitedTextRunes is the length below which a document is probably
	// scanned or nearly empty.
	LimitedTextRunes = 50
)

const doctorPrompt = `Analyze the following document text. Identify:
1. Grammar mistakes
2. Weak phrasing that could be improved
3. Missing information or unclear sections
4. Style inconsistencies

Then provide a professionally rewritten version of the content.

Return your response in this exact JSON format:
{
  "issues": [
    { "type": "grammar|style|clarity|missing", "text": "the problematic text", "suggestion": "how to fix it" }
  ],
  "improvedContent": "The full rewritten, professional version of the document",
  "summary": "A brief 2-3 sentence summary of the main issues found"
}

Document text:
`

type Issue struct {
	Type       string `json:"type" validate:"required,oneof=grammar style clarity missing"`
	Text       string `json:"text"`
	Suggestion string `json:"suggestion" validate:"required"`
}

// Analysis is the document doctor's verdict.
type Analysis struct {
	Issues          []Issue `json:"issues" validate:"required,dive"`
	ImprovedContent string  `json:"improvedContent" validate:"required"`
	Summary         string  `json:"summary" validate:"required"`
	// LimitedText is set when the analysed text was very short.
	LimitedText bool `json:"limitedText"`
}

// Report lays the analysis out as plain text for download.
func (a Analysis) Report() string {
	var b strings.Builder
	b.WriteString("Document Doctor\n\nSummary\n")
	b.WriteString(a.Summary)
	if len(a.Issues) > 0 {
		b.WriteString("\n\nIssues\n")
		for i, is := range a.Issues {
			fmt.Fprintf(&b, "\n%d. [%s] %s\n   %s\n", i+1, is.Type, is.Text, is.Suggestion)
		}
	}
	if a.ImprovedContent != "" {
		b.WriteString("\n\nImproved version\n\n")
		b.WriteString(a.ImprovedContent)
	}
	return b.String()
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DoctorPrompt builds the analysis prompt for text.
func DoctorPrompt(text string) string {
	return doctorPrompt + Truncate(text, DoctorMaxRunes)
}

// IsLimitedText reports whether text is too short to say much about.
func IsLimitedText(text string) bool {
	return len([]rune(strings.TrimSpace(text))) < LimitedTextRunes
}

// Doctor asks the model to review text. The model's prose is never
// returned: either a valid Analysis comes back or ErrMalformedResponse.
func (c *Client) Doctor(ctx context.Context, apiKey, text string) (Analysis, error) {
	if strings.TrimSpace(text) == "" {
		return Analysis{}, fmt.Errorf("%w: no text to analyze", ErrNoInput)
	}
	start := time.Now()
	raw, err := c.Generate(ctx, apiKey, DoctorPrompt(text))
	if err != nil {
		c.metrics.ObserveAI("doctor", err)
		return Analysis{}, err
	}
	a, err := ParseAnalysis(raw)
	c.metrics.ObserveAI("doctor", err)
	if err != nil {
		logging.Warnf("[AI] Doctor response rejected: %v", err)
		return Analysis{}, err
	}
	a.LimitedText = IsLimitedText(text)
	logging.Logf("[AI] Doctor found %d issues in %s", len(a.Issues), time.Since(start).Round(time.Millisecond))
	return a, nil
}

// ParseAnalysis decodes the first JSON object in raw and checks the
// required fields.
func ParseAnalysis(raw string) (Analysis, error) {
	obj, ok := FirstJSONObject(raw)
	if !ok {
		return Analysis{}, fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
	}
	var a Analysis
	if err := json.Unmarshal([]byte(obj), &a); err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := validate.Struct(a); err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return a, nil
}

// FirstJSONObject returns the first balanced {...} in s. Braces inside
// JSON strings, including escaped quotes, are ignored.
func FirstJSONObject(s string) (string, bool) {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end, ok := matchBrace(s, start); ok {
			return s[start : end+1], true
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func matchBrace(s string, start int) (int, bool) {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// Truncate keeps at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
