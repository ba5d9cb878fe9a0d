package report

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Language selects the label set of the PDF report.
type Language string

const (
	LangEnglish Language = "en"
	LangTurkish Language = "tr"
)

var ErrUnsupportedLanguage = errors.New("report: unsupported language")

//go:embed locales/*.json
var localeFS embed.FS

var (
	localesOnce sync.Once
	locales     map[Language]map[string]string
	localesErr  error
)

func loadLocales() (map[Language]map[string]string, error) {
	localesOnce.Do(func() {
		locales = make(map[Language]map[string]string)
		for _, lang := range []Language{LangEnglish, LangTurkish} {
			data, err := localeFS.ReadFile("locales/" + string(lang) + ".json")
			if err != nil {
				localesErr = fmt.Errorf("report: load locale %s: %w", lang, err)
				return
			}
			var labels map[string]string
			if err := json.Unmarshal(data, &labels); err != nil {
				localesErr = fmt.Errorf("report: parse locale %s: %w", lang, err)
				return
			}
			locales[lang] = labels
		}
	})
	return locales, localesErr
}

// Translator looks up report labels, falling back to English and then to
// the key itself.
type Translator struct {
	lang   Language
	labels map[string]string
	en     map[string]string
}

func NewTranslator(lang Language) Translator {
	all, err := loadLocales()
	if err != nil {
		return Translator{lang: LangEnglish}
	}
	labels, ok := all[lang]
	if !ok {
		lang = LangEnglish
		labels = all[LangEnglish]
	}
	return Translator{lang: lang, labels: labels, en: all[LangEnglish]}
}

func (t Translator) Lang() Language {
	return t.lang
}

func (t Translator) T(key string) string {
	if v, ok := t.labels[key]; ok {
		return v
	}
	if v, ok := t.en[key]; ok {
		return v
	}
	return key
}

func (t Translator) Format(key string, args ...interface{}) string {
	return fmt.Sprintf(t.T(key), args...)
}

// ParseLanguage converts a flag value into a supported Language.
func ParseLanguage(lang string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "", "en", "en-us", "en-gb", "english":
		return LangEnglish, nil
	case "tr", "tr-tr", "turkish", "türkçe", "turkce":
		return LangTurkish, nil
	default:
		return LangEnglish, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}
}
