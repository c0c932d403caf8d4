package i18n

import (
	"net/http"

	"golang.org/x/text/language"
)

var supported = language.NewMatcher([]language.Tag{language.English, language.Russian})

// Middleware picks a translator from the Accept-Language header and stores
// it in the request context.
func Middleware(base *Translator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t := base
			if accept := r.Header.Get("Accept-Language"); accept != "" {
				tags, _, err := language.ParseAcceptLanguage(accept)
				if err == nil && len(tags) > 0 {
					tag, _, _ := supported.Match(tags...)
					b, _ := tag.Base()
					t = t.ForLang(b.String())
				}
			}
			next.ServeHTTP(w, r.WithContext(WithTranslator(r.Context(), t)))
		})
	}
}
