package supervisor

import (
	"math"
	"time"
)

// Policy controls the delay between reconnect attempts.
type Policy struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DefaultPolicy returns a Policy starting at 100ms, doubling on each
// consecutive failure and capped at 30s.
func DefaultPolicy() Policy {
	return Policy{
		InitialDelay: 100 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
	}
}

// NextDelay returns the backoff delay for the given consecutive failure
// (1-indexed). The delay is InitialDelay * Multiplier^(failure-1), capped
// at MaxDelay.
func (p Policy) NextDelay(failure int) time.Duration {
	if failure < 1 {
		failure = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(failure-1))
	if delay > float64(p.MaxDelay) || math.IsInf(delay, 0) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// normalize fills zero fields from DefaultPolicy.
func (p Policy) normalize() Policy {
	def := DefaultPolicy()
	if p.InitialDelay <= 0 {
		p.InitialDelay = def.InitialDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	return p
}
