package sink

import "time"

// SystemClock is the production Clock, a thin wrapper over time.Now and
// time.NewTicker.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) NewTicker(d time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s *systemTicker) C() <-chan time.Time { return s.t.C }
func (s *systemTicker) Stop()                { s.t.Stop() }

// FakeClock is a manually-advanced Clock for deterministic scheduler and
// breaker tests, grounded on the fake clocks used throughout the teacher's
// heartbeat/TTL tests (core/heartbeat_test.go) but exposing Advance instead
// of sleeping real time.
type FakeClock struct {
	now     time.Time
	tickers []*fakeTicker
}

// NewFakeClock starts the clock at t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

func (f *FakeClock) Now() time.Time { return f.now }

func (f *FakeClock) NewTicker(d time.Duration) Ticker {
	ft := &fakeTicker{period: d, ch: make(chan time.Time, 1), next: f.now.Add(d)}
	f.tickers = append(f.tickers, ft)
	return ft
}

// Advance moves the clock forward by d, firing any ticker whose period has
// elapsed. Each ticker buffers at most one pending tick; further ticks due
// while one is pending are dropped, as with time.Ticker.
func (f *FakeClock) Advance(d time.Duration) {
	target := f.now.Add(d)
	for _, t := range f.tickers {
		for !t.stopped && !t.next.After(target) {
			select {
			case t.ch <- t.next:
			default:
			}
			t.next = t.next.Add(t.period)
		}
	}
	f.now = target
}

type fakeTicker struct {
	period  time.Duration
	next    time.Time
	ch      chan time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()                { t.stopped = true }
