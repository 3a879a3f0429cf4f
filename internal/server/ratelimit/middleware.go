// Provides response writers for rate limiting.

package ratelimit

import (
	"net/http"
	"strconv"
	"time"
)

// Limiters holds the limiter of each rate limited route class.
type Limiters struct {
	// Write applies to uploads.
	Write *Limiter
	// Infer applies to inference and evaluation.
	Infer *Limiter
}

// NewLimiters builds limiters from per-minute rates. A rate of 0 disables
// the corresponding limiter.
func NewLimiters(writePerMin, inferPerMin int) *Limiters {
	return &Limiters{
		Write: NewLimiter(writePerMin, time.Minute, max(writePerMin/6, 1)),
		Infer: NewLimiter(inferPerMin, time.Minute, max(inferPerMin/6, 1)),
	}
}

// Close stops all limiters.
func (l *Limiters) Close() {
	l.Write.Close()
	l.Infer.Close()
}

// WriteHeaders writes rate limit headers to the response.
// Headers are written on all responses (both success and 429).
func WriteHeaders(w http.ResponseWriter, result Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if !result.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
	}
}

// rateLimitResponseWriter injects rate limit headers before any response is
// written.
type rateLimitResponseWriter struct {
	http.ResponseWriter
	result      Result
	wroteHeader bool
}

// NewResponseWriter creates a response writer that injects rate limit headers.
func NewResponseWriter(w http.ResponseWriter, result Result) http.ResponseWriter {
	return &rateLimitResponseWriter{ResponseWriter: w, result: result}
}

func (rw *rateLimitResponseWriter) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		WriteHeaders(rw.ResponseWriter, rw.result)
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *rateLimitResponseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		WriteHeaders(rw.ResponseWriter, rw.result)
		rw.wroteHeader = true
	}
	return rw.ResponseWriter.Write(b)
}

// Unwrap returns the underlying ResponseWriter for http.ResponseController.
func (rw *rateLimitResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
