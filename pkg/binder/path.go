package binder

import "net/http"

// Path binds fields tagged `path:"name"` using extractor, typically chi.URLParam.
// Fields without the tag are ignored.
func Path(extractor func(r *http.Request, name string) string) func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		return bindTagged(v, "path", ErrFailedToParsePath, func(name string) []string {
			if s := extractor(r, name); s != "" {
				return []string{s}
			}
			return nil
		})
	}
}

// Query binds fields tagged `query:"name"` from the URL query string.
func Query() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		q := r.URL.Query()
		return bindTagged(v, "query", ErrFailedToParseQuery, func(name string) []string {
			return q[name]
		})
	}
}
