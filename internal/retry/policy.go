package retry

import (
	"fmt"
	"time"

	"git.home.luguber.info/inful/distcache/internal/config"
)

// Policy describes how often and how patiently a transient failure is retried.
// MaxRetries counts attempts after the first one; zero disables retrying.
type Policy struct {
	Mode       config.RetryBackoffMode
	Initial    time.Duration
	Max        time.Duration
	MaxRetries int
}

// DefaultPolicy never retries. When retries are enabled the delay grows
// exponentially from 1s up to 30s.
func DefaultPolicy() Policy {
	return Policy{Mode: config.RetryBackoffExponential, Initial: time.Second, Max: 30 * time.Second}
}

// FromConfig builds a policy from the retry section. Unparseable durations
// were already rejected by config validation and fall back to defaults here.
func FromConfig(cfg config.RetryConfig) Policy {
	initial, _ := time.ParseDuration(cfg.InitialDelay)
	maxDelay, _ := time.ParseDuration(cfg.MaxDelay)
	return NewPolicy(cfg.Backoff, initial, maxDelay, cfg.MaxRetries)
}

// NewPolicy overlays the non-zero arguments on DefaultPolicy. Initial is
// clamped to Max.
func NewPolicy(mode config.RetryBackoffMode, initial, maxDelay time.Duration, maxRetries int) Policy {
	p := DefaultPolicy()
	if m := config.NormalizeRetryBackoff(string(mode)); m != "" {
		p.Mode = m
	}
	if initial > 0 {
		p.Initial = initial
	}
	if maxDelay > 0 {
		p.Max = maxDelay
	}
	if maxRetries > 0 {
		p.MaxRetries = maxRetries
	}
	p.Initial = min(p.Initial, p.Max)
	return p
}

// Delay is the wait before retry number n (1-based).
func (p Policy) Delay(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	var d time.Duration
	switch p.Mode {
	case config.RetryBackoffFixed:
		d = p.Initial
	case config.RetryBackoffExponential:
		d = p.Initial
		for i := 1; i < n && d < p.Max; i++ {
			d *= 2
		}
	default:
		d = time.Duration(n) * p.Initial
	}
	return min(d, p.Max)
}

// Validate rejects policies that cannot produce a delay.
func (p Policy) Validate() error {
	switch {
	case p.Initial <= 0:
		return fmt.Errorf("retry initial delay must be > 0, got %s", p.Initial)
	case p.Max <= 0:
		return fmt.Errorf("retry max delay must be > 0, got %s", p.Max)
	case p.MaxRetries < 0:
		return fmt.Errorf("retry count cannot be negative, got %d", p.MaxRetries)
	}
	return nil
}
