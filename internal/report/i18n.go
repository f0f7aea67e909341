package report

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Language is a report locale code.
type Language string

const (
	LangEnglish Language = "en"
	LangTurkish Language = "tr"
)

// ErrUnsupportedLanguage is returned by ParseLanguage for unknown codes.
var ErrUnsupportedLanguage = errors.New("report: unsupported language")

//go:embed en.json tr.json
var catalogFS embed.FS

// locales holds one key/label catalogue per language, read from <code>.json.
var locales = loadCatalogues(LangEnglish, LangTurkish)

var languageAliases = map[string]Language{
	"":        LangEnglish,
	"en":      LangEnglish,
	"en-us":   LangEnglish,
	"en-gb":   LangEnglish,
	"english": LangEnglish,
	"tr":      LangTurkish,
	"tr-tr":   LangTurkish,
	"turkish": LangTurkish,
	"türkçe":  LangTurkish,
	"turkce":  LangTurkish,
}

func loadCatalogues(langs ...Language) map[Language]map[string]string {
	out := make(map[Language]map[string]string, len(langs))
	for _, lang := range langs {
		raw, err := catalogFS.ReadFile(string(lang) + ".json")
		if err != nil {
			panic(fmt.Sprintf("report: read catalogue %s: %v", lang, err))
		}
		cat := map[string]string{}
		if err := json.Unmarshal(raw, &cat); err != nil {
			panic(fmt.Sprintf("report: decode catalogue %s: %v", lang, err))
		}
		out[lang] = cat
	}
	return out
}

// Languages lists the available catalogues, sorted.
func Languages() []Language {
	out := make([]Language, 0, len(locales))
	for lang := range locales {
		out = append(out, lang)
	}
	slices.Sort(out)
	return out
}

// Translator looks labels up in its language, then in English.
type Translator struct {
	lang  Language
	chain []map[string]string
}

// NewTranslator returns a translator for lang. Unknown languages get English.
func NewTranslator(lang Language) Translator {
	if _, ok := locales[lang]; !ok {
		lang = LangEnglish
	}
	t := Translator{lang: lang, chain: []map[string]string{locales[lang]}}
	if lang != LangEnglish {
		t.chain = append(t.chain, locales[LangEnglish])
	}
	return t
}

func (t Translator) Lang() Language {
	return t.lang
}

// T returns the label for key, or key itself when no catalogue has it.
func (t Translator) T(key string) string {
	for _, cat := range t.chain {
		if v, ok := cat[key]; ok {
			return v
		}
	}
	return key
}

func (t Translator) Format(key string, args ...any) string {
	return fmt.Sprintf(t.T(key), args...)
}

// ParseLanguage maps a flag or query value onto a Language.
func ParseLanguage(s string) (Language, error) {
	if lang, ok := languageAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return lang, nil
	}
	return LangEnglish, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, s)
}
