package backoff

import (
	"testing"
	"time"
)

func TestExponentialDoublesDeterministically(t *testing.T) {
	strategy := Exponential{}
	base := 100 * time.Millisecond
	max := time.Hour

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
	}

	for _, test := range tests {
		got := strategy.Delay(test.attempt, base, max, 2, 0)
		if got != test.want {
			t.Errorf("Delay(%d) = %v, want exactly %v", test.attempt, got, test.want)
		}
	}
}

func TestExponentialIgnoresJitterParameter(t *testing.T) {
	strategy := Exponential{}
	a := strategy.Delay(3, time.Second, time.Hour, 2, 0.9)
	b := strategy.Delay(3, time.Second, time.Hour, 2, 0)
	if a != b {
		t.Errorf("deterministic strategy varied with jitter: %v vs %v", a, b)
	}
}

func TestExponentialCapsAtMax(t *testing.T) {
	strategy := Exponential{}

	got := strategy.Delay(10, time.Second, 30*time.Second, 2, 0)
	if got != 30*time.Second {
		t.Errorf("Delay(10) = %v, want the 30s cap", got)
	}

	// Huge attempt numbers must not overflow into a negative duration.
	got = strategy.Delay(1000, time.Second, 30*time.Second, 2, 0)
	if got != 30*time.Second {
		t.Errorf("Delay(1000) = %v, want the 30s cap", got)
	}
}

func TestExponentialNegativeAttempt(t *testing.T) {
	strategy := Exponential{}
	if got := strategy.Delay(-1, time.Second, time.Hour, 2, 0); got != time.Second {
		t.Errorf("Delay(-1) = %v, want base", got)
	}
}

func TestExponentialJitterStaysInRange(t *testing.T) {
	strategy := ExponentialJitter{}
	base := 100 * time.Millisecond
	max := time.Hour

	for i := 0; i < 100; i++ {
		got := strategy.Delay(2, base, max, 2, 0.5)
		lower := 400 * time.Millisecond
		upper := 600 * time.Millisecond
		if got < lower || got > upper {
			t.Fatalf("Delay = %v, want within [%v, %v]", got, lower, upper)
		}
	}
}

func TestExponentialJitterRespectsMax(t *testing.T) {
	strategy := ExponentialJitter{}
	max := 450 * time.Millisecond

	for i := 0; i < 100; i++ {
		if got := strategy.Delay(2, 100*time.Millisecond, max, 2, 1); got > max {
			t.Fatalf("Delay = %v exceeds max %v", got, max)
		}
	}
}

func TestPow(t *testing.T) {
	tests := []struct {
		base     float64
		exponent int
		want     float64
	}{
		{2, 0, 1},
		{2, 1, 2},
		{2, 10, 1024},
		{1.5, 2, 2.25},
	}

	for _, test := range tests {
		if got := Pow(test.base, test.exponent); got != test.want {
			t.Errorf("Pow(%v, %d) = %v, want %v", test.base, test.exponent, got, test.want)
		}
	}
}
