package streamio

import (
	"io"
	"time"

	catrate "github.com/joeycumines/go-catrate"
)

// RateLimitedWriter wraps an io.Writer, blocking each Write until a
// shared *catrate.Limiter admits another event for category.
type RateLimitedWriter struct {
	w        io.Writer
	limiter  *catrate.Limiter
	category any
	sleep    func(time.Duration)
}

// NewRateLimitedWriter returns a Writer that rate-limits w under category
// using limiter. Multiple RateLimitedWriters sharing one limiter and
// category are limited together.
func NewRateLimitedWriter(w io.Writer, limiter *catrate.Limiter, category any) *RateLimitedWriter {
	return &RateLimitedWriter{w: w, limiter: limiter, category: category, sleep: time.Sleep}
}

func (r *RateLimitedWriter) Write(p []byte) (int, error) {
	if t, ok := r.limiter.Allow(r.category); !ok {
		if d := time.Until(t); d > 0 {
			r.sleep(d)
		}
	}
	return r.w.Write(p)
}
