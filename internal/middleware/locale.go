package middleware

import (
	"context"
	"net/http"

	"github.com/soaringjerry/questionflow/internal/utils"
)

type ctxKey int

const localeKey ctxKey = 1

// Locale resolves each request's locale from ?lang= or Accept-Language,
// limited to supported and falling back to def.
func Locale(supported []string, def string) func(http.Handler) http.Handler {
	if len(supported) == 0 {
		supported = utils.SupportedLocales
	}
	if def == "" {
		def = supported[0]
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			locale := utils.DetermineLocale(r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"), supported, def)
			w.Header().Set("Content-Language", locale)
			w.Header().Add("Vary", "Accept-Language")
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), localeKey, locale)))
		})
	}
}

func LocaleFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(localeKey).(string); ok {
		return s
	}
	return "en"
}
