package engine

import (
	"golang.org/x/sync/semaphore"
)

// WithMaxConcurrentExecutions bounds the number of queries executing at once.
// Further calls to Execute block until a running query finishes or their
// context is done. A limit of zero or less disables the bound.
func WithMaxConcurrentExecutions(max int) Option {
	return func(e *Engine) {
		if max <= 0 {
			e.limiter = nil
			return
		}
		e.limiter = semaphore.NewWeighted(int64(max))
	}
}
