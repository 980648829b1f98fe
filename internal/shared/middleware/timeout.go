package middleware

import (
	"net/http"
	"time"
)

const timeoutBody = `{"message":"Request timed out"}`

// Timeout bounds each request to d. Requests that run over answer 503 with a
// JSON error body.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		th := http.TimeoutHandler(next, d, timeoutBody)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			th.ServeHTTP(&jsonDefaultWriter{ResponseWriter: w}, r)
		})
	}
}

// jsonDefaultWriter labels a response as JSON when nothing else set a
// Content-Type. http.TimeoutHandler writes its error body without one.
type jsonDefaultWriter struct {
	http.ResponseWriter
}

func (w *jsonDefaultWriter) WriteHeader(code int) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.ResponseWriter.WriteHeader(code)
}
