package middleware

import (
	"log"
	"net/http"
	"time"
)

type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w}
}

func (rw *responseWriter) Status() int {
	return rw.status
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}

	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
	rw.wroteHeader = true
}

// Flush keeps streaming responses working behind the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		if !rw.wroteHeader {
			rw.WriteHeader(http.StatusOK)
		}
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// slowRequest is above the default per-institution fetch timeout, so a
// dashboard request that crosses it waited on more than one slow bank.
const slowRequest = 12 * time.Second

// Logging writes one line per request. Paths are logged without the query
// string so link tokens never reach the logs.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := wrapResponseWriter(w)
		next.ServeHTTP(wrapped, r)

		status := wrapped.status
		if status == 0 {
			status = http.StatusOK
		}

		path := r.URL.Path
		if r.Pattern != "" {
			path = r.Pattern
		}

		elapsed := time.Since(start)
		switch {
		case status >= 500:
			log.Printf("ERROR %s %s %d %s", r.Method, path, status, elapsed)
		case elapsed > slowRequest:
			log.Printf("SLOW %s %s %d %s", r.Method, path, status, elapsed)
		default:
			log.Printf("%s %s %d %s", r.Method, path, status, elapsed)
		}
	})
}
