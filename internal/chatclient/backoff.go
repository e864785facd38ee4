package chatclient

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultBackoffBase   = 500 * time.Millisecond
	defaultBackoffFactor = 2.0
	defaultBackoffMax    = 30 * time.Second
	defaultBackoffJitter = 0.2
	defaultHealthyAfter  = 10 * time.Second
)

// newReconnectBackoff never gives up; Run stops only on ctx or rejection.
func newReconnectBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = defaultBackoffBase
	b.Multiplier = defaultBackoffFactor
	b.MaxInterval = defaultBackoffMax
	b.RandomizationFactor = defaultBackoffJitter
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
