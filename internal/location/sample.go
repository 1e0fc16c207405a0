// Package location delivers position samples from a device platform to a
// single consumer, in foreground or background mode.
package location

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrPermissionDenied      = errors.New("location permission denied")
	ErrBackgroundUnavailable = errors.New("background location delivery unavailable")
	ErrAlreadySubscribed     = errors.New("location source already has an active subscription")
)

// Sample is one geolocation reading.
type Sample struct {
	Latitude       float64   `json:"lat"`
	Longitude      float64   `json:"lng"`
	AccuracyMeters float64   `json:"accuracy_m"`
	CapturedAt     time.Time `json:"captured_at"`
}

// WatchOptions sets delivery cadence. A watcher emits at most once per
// Interval, or after the device moved DistanceFilterM meters, whichever the
// platform supports. BatchSize only applies to background delivery.
type WatchOptions struct {
	Interval        time.Duration
	DistanceFilterM float64
	BatchSize       int
}

// Subscription is the handle returned by every watch operation.
type Subscription interface {
	Unsubscribe()
}

type stopFunc struct {
	once sync.Once
	fn   func()
}

func newStopFunc(fn func()) *stopFunc {
	return &stopFunc{fn: fn}
}

func (s *stopFunc) Unsubscribe() {
	s.once.Do(func() {
		if s.fn != nil {
			s.fn()
		}
	})
}
