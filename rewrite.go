package dashserve

import (
	"net/http"
	"strings"
)

// RewriteFunc maps a request path to the path that is resolved against the document root.
type RewriteFunc func(urlPath string) string

// SPARewrite routes the root path and every path starting with one of prefixes to index,
// leaving client-side routing to the single page application. Other paths pass through.
//
// Prefixes match on the raw string, so "/dashboard" also matches "/dashboards".
func SPARewrite(index string, prefixes ...string) RewriteFunc {
	return func(urlPath string) string {
		if urlPath == "/" {
			return index
		}
		for _, prefix := range prefixes {
			if prefix != "" && strings.HasPrefix(urlPath, prefix) {
				return index
			}
		}
		return urlPath
	}
}

// RewriteMiddleware returns a middleware function that applies fn to the request path
// before handing the request on. The original request is left untouched.
func RewriteMiddleware(fn RewriteFunc) MiddlewareFunc {
	return func(next http.Handler) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			rewritten := fn(r.URL.Path)
			if rewritten == r.URL.Path {
				next.ServeHTTP(w, r)
				return
			}
			r2 := r.Clone(r.Context())
			r2.URL.Path = rewritten
			r2.URL.RawPath = ""
			next.ServeHTTP(w, r2)
		}
	}
}
