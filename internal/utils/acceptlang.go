package utils

import (
	"strings"

	"golang.org/x/text/language"
)

// SupportedLocales are the locales the server has translations for.
var SupportedLocales = []string{"en", "zh"}

// DetermineLocale resolves a locale from an explicit query value, then the
// Accept-Language header, falling back to def. Results are always one of supported.
func DetermineLocale(queryLang, acceptLang string, supported []string, def string) string {
	if len(supported) == 0 {
		return "en"
	}
	tags := make([]language.Tag, 0, len(supported))
	names := make([]string, 0, len(supported))
	for _, s := range supported {
		tag, err := language.Parse(s)
		if err != nil {
			continue
		}
		tags = append(tags, tag)
		names = append(names, strings.ToLower(s))
	}
	if len(tags) == 0 {
		return "en"
	}
	matcher := language.NewMatcher(tags)

	match := func(candidates ...language.Tag) (string, bool) {
		if len(candidates) == 0 {
			return "", false
		}
		_, idx, conf := matcher.Match(candidates...)
		if conf == language.No {
			return "", false
		}
		return names[idx], true
	}

	if q := strings.TrimSpace(queryLang); q != "" {
		if tag, err := language.Parse(q); err == nil {
			if v, ok := match(tag); ok {
				return v
			}
		}
	}
	if a := strings.TrimSpace(acceptLang); a != "" {
		if accepted, _, err := language.ParseAcceptLanguage(a); err == nil {
			if v, ok := match(accepted...); ok {
				return v
			}
		}
	}
	for _, n := range names {
		if n == strings.ToLower(def) {
			return n
		}
	}
	return names[0]
}
