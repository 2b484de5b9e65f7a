package device

import "time"

// RetryPolicy controls how SyncState retries after a failed read.
//
// The zero value retries forever with a fixed one-second spacing, which
// suits battery or mesh nodes that are merely slow to answer. A positive
// MaxAttempts turns a persistently unreachable node into a Degraded device
// instead.
type RetryPolicy struct {
	Backoff     time.Duration // First wait (default 1s)
	Multiplier  float64       // Growth per attempt; <= 1 keeps spacing fixed
	MaxBackoff  time.Duration // Upper bound on a single wait (0 = none)
	MaxAttempts int           // 0 = unlimited
}

// DefaultRetryPolicy returns the fixed 1s, unlimited policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Backoff: time.Second, Multiplier: 1}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Backoff <= 0 {
		p.Backoff = time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	return p
}

// next returns the wait after one that lasted d.
func (p RetryPolicy) next(d time.Duration) time.Duration {
	n := time.Duration(float64(d) * p.Multiplier)
	if p.MaxBackoff > 0 && n > p.MaxBackoff {
		n = p.MaxBackoff
	}
	return n
}

// exhausted reports whether attempt was the last one allowed.
func (p RetryPolicy) exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}
