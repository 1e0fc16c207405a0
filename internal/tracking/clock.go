package tracking

import "time"

// Ticker is the subset of time.Ticker the session clock needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFunc func(d time.Duration) Ticker

type realTicker struct {
	ticker *time.Ticker
}

func (t *realTicker) C() <-chan time.Time { return t.ticker.C }
func (t *realTicker) Stop() { t.ticker.Stop() }

// NewRealTicker wraps time.NewTicker.
func NewRealTicker(d time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(d)}
}

// SessionClock counts logical seconds and fans each tick out to its
// listeners. The owning loop selects on C and calls Tick when it fires, so
// the elapsed counter and the workout engine advance on the same tick.
// Not safe for concurrent use.
type SessionClock struct {
	interval  time.Duration
	newTicker TickerFunc
	ticker    Ticker
	elapsed   int
	listeners []func(elapsed int)
}

func NewSessionClock(interval time.Duration, newTicker TickerFunc) *SessionClock {
	if interval <= 0 {
		interval = time.Second
	}
	if newTicker == nil {
		newTicker = NewRealTicker
	}
	return &SessionClock{interval: interval, newTicker: newTicker}
}

// OnTick registers a listener called after the elapsed counter moves.
func (c *SessionClock) OnTick(fn func(elapsed int)) {
	c.listeners = append(c.listeners, fn)
}

// Start resets the counter and begins ticking.
func (c *SessionClock) Start() {
	c.halt()
	c.elapsed = 0
	c.ticker = c.newTicker(c.interval)
}

func (c *SessionClock) Pause() {
	c.halt()
}

func (c *SessionClock) Resume() {
	if c.ticker == nil {
		c.ticker = c.newTicker(c.interval)
	}
}

// Stop halts ticking and returns the final count.
func (c *SessionClock) Stop() int {
	c.halt()
	return c.elapsed
}

// Clear halts ticking and zeroes the counter.
func (c *SessionClock) Clear() {
	c.halt()
	c.elapsed = 0
}

func (c *SessionClock) halt() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
}

// C is nil while the clock is not ticking, which blocks forever in a select.
func (c *SessionClock) C() <-chan time.Time {
	if c.ticker == nil {
		return nil
	}
	return c.ticker.C()
}

// Tick advances the counter by one and notifies listeners. Ticks delivered
// while halted are ignored.
func (c *SessionClock) Tick() int {
	if c.ticker == nil {
		return c.elapsed
	}
	c.elapsed++
	for _, fn := range c.listeners {
		fn(c.elapsed)
	}
	return c.elapsed
}

func (c *SessionClock) Elapsed() int { return c.elapsed }

func (c *SessionClock) Running() bool { return c.ticker != nil }
