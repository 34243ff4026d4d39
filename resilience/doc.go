// Package resilience guards calls to external stores.
//
// Retry repeats a failing call with exponential backoff. CircuitBreaker
// fails fast once a dependency keeps failing and lets a probe through
// after a cooldown. The Redis status mirror combines both:
//
//	err := breaker.Execute(func() error {
//	    return resilience.RetryFunc(ctx, retryCfg, write)
//	})
package resilience
