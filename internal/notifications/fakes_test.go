package notifications

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"rockguard/internal/models"
)

type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               { f.stopped.Store(true) }

// fakeClock hands out a single unbuffered ticker; a send on it returns only
// once the generator loop has picked the tick up.
type fakeClock struct {
	mu       sync.Mutex
	now      time.Time
	ticker   *fakeTicker
	interval time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interval = d
	c.ticker = &fakeTicker{ch: make(chan time.Time)}
	return c.ticker
}

func (c *fakeClock) Tick() {
	c.ticker.ch <- c.Now()
}

// scriptedRand replays fixed values, cycling when it runs out.
type scriptedRand struct {
	floats []float64
	ints   []int
	fi, ii int
}

func (r *scriptedRand) Float64() float64 {
	if len(r.floats) == 0 {
		return 0
	}
	v := r.floats[r.fi%len(r.floats)]
	r.fi++
	return v
}

func (r *scriptedRand) Intn(n int) int {
	if len(r.ints) == 0 {
		return 0
	}
	v := r.ints[r.ii%len(r.ints)] % n
	r.ii++
	return v
}

type recordingSink struct {
	mu     sync.Mutex
	events []*models.Event
}

func (r *recordingSink) Emit(session string, event *models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingSink) kinds() []models.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string {
		return "n-" + strconv.FormatInt(n.Add(1), 10)
	}
}

// flakyRand panics on the calls listed in panicAt, counting from zero.
type flakyRand struct {
	scriptedRand
	calls   int
	panicAt map[int]bool
}

func (r *flakyRand) Float64() float64 {
	n := r.calls
	r.calls++
	if r.panicAt[n] {
		panic("random source failed")
	}
	return r.scriptedRand.Float64()
}
