package transport

import (
	"math/rand"
	"time"
)

// Reconnect delays. The base doubles per failed attempt up to backoffMax and
// is then spread by up to a quarter either way so a fleet of devices does
// not reconnect in lockstep after a broker restart.
const (
	backoffBase   = 1 * time.Second
	backoffMax    = 60 * time.Second
	backoffSpread = 0.25
)

// retryDelay returns the wait before retry number attempt (0-based).
// jitter is a value in [-1, 1).
func retryDelay(attempt int, jitter float64) time.Duration {
	d := backoffBase
	for i := 0; i < attempt && d < backoffMax; i++ {
		d *= 2
	}
	if d > backoffMax {
		d = backoffMax
	}
	return d + time.Duration(float64(d)*backoffSpread*jitter)
}

// randomJitter returns a value in [-1, 1).
func randomJitter() float64 {
	return rand.Float64()*2 - 1 //nolint:gosec // timing jitter, not crypto
}
