// Package backoff centralizes retry delay calculation so the client and any
// custom retry policies share one implementation.
package backoff

import (
	"math/rand"
	"time"
)

// Strategy computes the delay before retry attempt n, where n counts the
// attempts already made (0-indexed).
type Strategy interface {
	Delay(attempt int, base, max time.Duration, multiplier, jitter float64) time.Duration
}

// Exponential is deterministic exponential backoff: base * multiplier^attempt,
// capped at max. With multiplier 2 this yields base, 2*base, 4*base.
type Exponential struct{}

// Delay implements Strategy. The jitter parameter is ignored.
func (Exponential) Delay(attempt int, base, max time.Duration, multiplier, _ float64) time.Duration {
	return exponential(attempt, base, max, multiplier)
}

// ExponentialJitter adds uniform random jitter on top of Exponential to
// spread retries from independent callers.
type ExponentialJitter struct{}

// Delay implements Strategy. Jitter is a fraction in [0, 1] of the computed
// delay added at random.
func (ExponentialJitter) Delay(attempt int, base, max time.Duration, multiplier, jitter float64) time.Duration {
	delay := exponential(attempt, base, max, multiplier)

	jitter = clampJitter(jitter)
	if jitter > 0 {
		extra := time.Duration(float64(delay) * jitter * rand.Float64())
		if delay+extra > max {
			return max
		}
		delay += extra
	}
	return delay
}

func exponential(attempt int, base, max time.Duration, multiplier float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Cap the exponent so the float product cannot overflow a Duration.
	if attempt > 30 {
		attempt = 30
	}

	delay := time.Duration(float64(base) * Pow(multiplier, attempt))
	if delay < 0 || delay > max {
		return max
	}
	return delay
}

func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}

// Pow computes base^exponent by repeated multiplication, enough precision for
// backoff multipliers without pulling in math.Pow edge case handling.
func Pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
