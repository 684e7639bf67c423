package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// Localizer handles translation lookups
type Localizer struct {
	lang string
	data map[string]interface{}
}

var (
	loadOnce   sync.Once
	localizers map[string]*Localizer
	matcher    language.Matcher
	supported  []string
	loadErr    error
)

// load parses every embedded locale. English is first so the matcher
// falls back to it.
func load() {
	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		loadErr = err
		return
	}
	localizers = make(map[string]*Localizer)
	for _, e := range entries {
		lang := strings.TrimSuffix(e.Name(), ".json")
		content, err := localeFS.ReadFile("locales/" + e.Name())
		if err != nil {
			loadErr = err
			return
		}
		var data map[string]interface{}
		if err := json.Unmarshal(content, &data); err != nil {
			loadErr = fmt.Errorf("failed to parse locale file %s: %w", e.Name(), err)
			return
		}
		localizers[lang] = &Localizer{lang: lang, data: data}
		supported = append(supported, lang)
	}
	sort.Slice(supported, func(i, j int) bool {
		if supported[i] == "en" || supported[j] == "en" {
			return supported[i] == "en"
		}
		return supported[i] < supported[j]
	})
	tags := make([]language.Tag, len(supported))
	for i, l := range supported {
		tags[i] = language.Make(l)
	}
	matcher = language.NewMatcher(tags)
}

// Supported lists the available languages, English first.
func Supported() []string {
	loadOnce.Do(load)
	return append([]string(nil), supported...)
}

// Match picks the best supported language for an Accept-Language header
// or a bare tag. It returns "en" when nothing matches.
func Match(prefs ...string) string {
	loadOnce.Do(load)
	if matcher == nil {
		return "en"
	}
	var tags []language.Tag
	for _, p := range prefs {
		if p == "" {
			continue
		}
		parsed, _, err := language.ParseAcceptLanguage(p)
		if err != nil {
			continue
		}
		tags = append(tags, parsed...)
	}
	if len(tags) == 0 {
		return "en"
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return "en"
	}
	return supported[idx]
}

// New returns the localizer for lang, falling back to English.
func New(lang string) (*Localizer, error) {
	loadOnce.Do(load)
	if loadErr != nil {
		return nil, loadErr
	}
	if l, ok := localizers[lang]; ok {
		return l, nil
	}
	if l, ok := localizers[Match(lang)]; ok {
		return l, nil
	}
	return nil, fmt.Errorf("no locale for %q", lang)
}

// T translates a key path like "backend.errors.corrupt_pdf"
func (l *Localizer) T(key string) string {
	return l.TWithData(key, nil)
}

// TWithData translates a key with template data for interpolation
func (l *Localizer) TWithData(key string, data map[string]string) string {
	if val, ok := lookup(l.data, key); ok {
		return interpolate(val, data)
	}
	if l.lang != "en" {
		if en, ok := localizers["en"]; ok {
			if val, ok := lookup(en.data, key); ok {
				return interpolate(val, data)
			}
		}
	}
	// Return the key if not found (for debugging)
	return key
}

func lookup(data map[string]interface{}, key string) (string, bool) {
	parts := strings.Split(key, ".")
	current := data
	for i, part := range parts {
		if i == len(parts)-1 {
			val, ok := current[part].(string)
			return val, ok
		}
		next, ok := current[part].(map[string]interface{})
		if !ok {
			return "", false
		}
		current = next
	}
	return "", false
}

// interpolate replaces {{key}} placeholders with values from data
func interpolate(text string, data map[string]string) string {
	for key, value := range data {
		text = strings.ReplaceAll(text, "{{"+key+"}}", value)
	}
	return text
}

// Lang returns the current language
func (l *Localizer) Lang() string {
	return l.lang
}

// T translates key in English.
func T(key string) string {
	return TWithData(key, nil)
}

// TWithData translates key in English with interpolation.
func TWithData(key string, data map[string]string) string {
	l, err := New("en")
	if err != nil {
		return key
	}
	return l.TWithData(key, data)
}
