package middleware

import (
	"net/http"
	"runtime/debug"
)

// Recover converts a handler panic into a 500 response so one bad request
// cannot take the listener down. The response uses the same error envelope
// as the API handlers.
func (m *Middleware) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}

			m.log.Error().
				Interface("panic", p).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Bytes("stack", debug.Stack()).
				Msg("request handler panicked")

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"code":"internal_error","message":"An unexpected error occurred"}}`))
		}()

		next.ServeHTTP(w, r)
	})
}
