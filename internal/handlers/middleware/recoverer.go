package middleware

import (
	"net/http"
	"runtime/debug"
)

type errorLogger interface {
	Error(msg string, args ...any)
}

// Recoverer turns handler panic into 500 response
func Recoverer(l errorLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				switch rec {
				case nil:
					return
				case http.ErrAbortHandler:
					// Aborting response on purpose
					panic(rec)
				}

				l.Error("handler panicked", "panic", rec, "uri", r.RequestURI, "stack", string(debug.Stack()))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
