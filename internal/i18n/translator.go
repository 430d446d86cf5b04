package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

//go:embed locales/*.json
var localeFS embed.FS

// Translator resolves message keys to localized system text.
// Assistant responses are localized by the model itself; this catalog only
// covers error and status messages the engine emits directly.
type Translator struct {
	locales  map[string]map[string]string
	fallback string
}

// New loads the embedded locale catalogs for the given languages.
func New(languages []string, fallback string) *Translator {
	t := &Translator{
		locales:  make(map[string]map[string]string, len(languages)),
		fallback: fallback,
	}
	for _, lang := range languages {
		data, err := localeFS.ReadFile("locales/" + lang + ".json")
		if err != nil {
			slog.Warn("locale file missing", "language", lang)
			t.locales[lang] = map[string]string{}
			continue
		}
		var messages map[string]string
		if err := json.Unmarshal(data, &messages); err != nil {
			slog.Error("locale file invalid", "language", lang, "error", err)
			t.locales[lang] = map[string]string{}
			continue
		}
		t.locales[lang] = messages
	}
	return t
}

// Translate resolves key in the target language, falling back to the
// default language and finally to the key itself. Positional arguments
// are applied with fmt.Sprintf when the message contains verbs.
func (t *Translator) Translate(key, language string, args ...any) string {
	msg := t.lookup(key, language)
	if msg == "" {
		msg = t.lookup(key, t.fallback)
	}
	if msg == "" {
		return key
	}
	if len(args) > 0 && strings.Contains(msg, "%") {
		return fmt.Sprintf(msg, args...)
	}
	return msg
}

func (t *Translator) lookup(key, language string) string {
	if messages, ok := t.locales[strings.ToLower(language)]; ok {
		return messages[key]
	}
	return ""
}
