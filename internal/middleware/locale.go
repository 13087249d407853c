package middleware

import (
	"context"
	"net/http"

	"github.com/soaringjerry/tasktrail/internal/utils"
)

type ctxKey int

const localeKey ctxKey = 1

const defaultLocale = "en"

// LocaleMiddleware picks the response locale from ?lang= or Accept-Language
// and echoes it in Content-Language.
func LocaleMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		locale := utils.DetermineLocale(r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"), utils.SupportedLocales, defaultLocale)
		w.Header().Set("Content-Language", locale)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), localeKey, locale)))
	})
}

func LocaleFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(localeKey).(string); ok && s != "" {
		return s
	}
	return defaultLocale
}
