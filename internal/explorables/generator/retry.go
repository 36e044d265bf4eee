package generator

import (
	"math"
	"time"
)

// RetryPolicy bounds how often a generation is re-attempted.
type RetryPolicy struct {
	// MaxRetries does not count the initial call.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// delay returns the exponential backoff before retry number attempt (0-indexed).
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}
