package notifications

import (
	"math/rand"
	"time"
)

// Clock supplies the current time and tickers to the store.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of *time.Ticker the generator needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Rand is the random source used by the synthetic generator.
// *math/rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) NewTicker(d time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s *systemTicker) C() <-chan time.Time { return s.t.C }
func (s *systemTicker) Stop()               { s.t.Stop() }

func newRand() Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
