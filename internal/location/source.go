package location

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"backend-runtracker/internal/metrics"

	"golang.org/x/time/rate"
)

// Platform is the raw device capability a Source is built over.
type Platform interface {
	RequestPermission(ctx context.Context) (bool, error)
	WatchForeground(ctx context.Context, opts WatchOptions, emit func(Sample)) (stop func(), err error)
	StartBackground(ctx context.Context, opts WatchOptions, emitBatch func([]Sample)) (stop func(), err error)
}

var (
	DefaultForeground = WatchOptions{Interval: time.Second, DistanceFilterM: 5}
	DefaultBackground = WatchOptions{Interval: 5 * time.Second, DistanceFilterM: 10, BatchSize: 50}
	DefaultIdle       = WatchOptions{Interval: 5 * time.Second}
)

const defaultBridgeSize = 256

// Source implements the position source contract on top of a Platform.
// It caches a granted permission, owns the background-mode guard and keeps at
// most one live subscription.
type Source struct {
	platform   Platform
	logger     *slog.Logger
	fgOpts     WatchOptions
	bgOpts     WatchOptions
	idleOpts   WatchOptions
	bridgeSize int

	mu           sync.Mutex
	granted      bool
	inBackground bool
	sub          *subscription
}

type SourceOption func(*Source)

func WithLogger(logger *slog.Logger) SourceOption {
	return func(s *Source) { s.logger = logger }
}

func WithForeground(opts WatchOptions) SourceOption {
	return func(s *Source) { s.fgOpts = opts }
}

func WithBackground(opts WatchOptions) SourceOption {
	return func(s *Source) { s.bgOpts = opts }
}

func WithIdle(opts WatchOptions) SourceOption {
	return func(s *Source) { s.idleOpts = opts }
}

func WithBridgeSize(n int) SourceOption {
	return func(s *Source) {
		if n > 0 {
			s.bridgeSize = n
		}
	}
}

func NewSource(platform Platform, opts ...SourceOption) *Source {
	s := &Source{
		platform:   platform,
		logger:     slog.Default(),
		fgOpts:     DefaultForeground,
		bgOpts:     DefaultBackground,
		idleOpts:   DefaultIdle,
		bridgeSize: defaultBridgeSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestAccess prompts the platform the first time and remembers a grant.
func (s *Source) RequestAccess(ctx context.Context) (bool, error) {
	s.mu.Lock()
	granted := s.granted
	s.mu.Unlock()
	if granted {
		return true, nil
	}

	ok, err := s.platform.RequestPermission(ctx)
	if err != nil {
		return false, fmt.Errorf("request location permission: %w", err)
	}
	if !ok {
		return false, ErrPermissionDenied
	}

	s.mu.Lock()
	s.granted = true
	s.mu.Unlock()
	return true, nil
}

// Subscribe starts delivery in the current mode. Both delivery paths feed one
// bounded bridge drained by a single pump goroutine, so onSample is never
// called concurrently and sees samples in enqueue order.
func (s *Source) Subscribe(ctx context.Context, onSample func(Sample)) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.granted {
		return nil, ErrPermissionDenied
	}
	if s.sub != nil {
		return nil, ErrAlreadySubscribed
	}

	sub := &subscription{
		source:   s,
		bridge:   make(chan []Sample, s.bridgeSize),
		done:     make(chan struct{}),
		pumpDone: make(chan struct{}),
		onSample: onSample,
	}

	if s.inBackground {
		stop, err := s.platform.StartBackground(ctx, s.backgroundOpts(), sub.offer)
		if err == nil {
			sub.stopBg = stop
		} else {
			s.logger.Warn("background delivery unavailable, using foreground", "error", err)
			metrics.BackgroundFallbacks.Inc()
			s.inBackground = false
		}
	}
	if sub.stopBg == nil {
		stop, err := s.platform.WatchForeground(ctx, s.fgOpts, sub.offerOne)
		if err != nil {
			return nil, fmt.Errorf("watch foreground location: %w", err)
		}
		sub.stopFg = stop
	}

	go sub.pump()
	s.sub = sub
	return sub, nil
}

// EnterBackgroundMode switches the live subscription to the durable batch
// channel. Calling it again while already in background mode is a no-op.
func (s *Source) EnterBackgroundMode(ctx context.Context) error {
	s.mu.Lock()
	if s.inBackground {
		s.mu.Unlock()
		return nil
	}
	var stopFg func()
	if s.sub != nil {
		stop, err := s.platform.StartBackground(ctx, s.backgroundOpts(), s.sub.offer)
		if err != nil {
			s.mu.Unlock()
			metrics.BackgroundFallbacks.Inc()
			return fmt.Errorf("%w: %v", ErrBackgroundUnavailable, err)
		}
		s.sub.stopBg = stop
		stopFg, s.sub.stopFg = s.sub.stopFg, nil
	}
	s.inBackground = true
	s.mu.Unlock()

	// Platform stops may block; other Source calls must not wait on them.
	if stopFg != nil {
		stopFg()
	}
	s.logger.Debug("location delivery entered background mode")
	return nil
}

// ExitBackgroundMode restarts foreground delivery before stopping the
// background task so the switch leaves no gap. Samples around the switch may
// reach the consumer out of timestamp order.
func (s *Source) ExitBackgroundMode(ctx context.Context) error {
	s.mu.Lock()
	if !s.inBackground {
		s.mu.Unlock()
		return nil
	}
	var stopBg func()
	if s.sub != nil {
		stop, err := s.platform.WatchForeground(ctx, s.fgOpts, s.sub.offerOne)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("watch foreground location: %w", err)
		}
		s.sub.stopFg = stop
		stopBg, s.sub.stopBg = s.sub.stopBg, nil
	}
	s.inBackground = false
	s.mu.Unlock()

	if stopBg != nil {
		stopBg()
	}
	s.logger.Debug("location delivery returned to foreground mode")
	return nil
}

// InBackground reports whether background mode is active.
func (s *Source) InBackground() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inBackground
}

// WatchAccuracy runs the low-frequency idle watcher. It relies on a grant
// cached by RequestAccess and never prompts on its own.
func (s *Source) WatchAccuracy(ctx context.Context, onAccuracy func(float64)) (Subscription, error) {
	s.mu.Lock()
	granted := s.granted
	s.mu.Unlock()
	if !granted {
		return nil, ErrPermissionDenied
	}

	every := rate.Inf
	if s.idleOpts.Interval > 0 {
		every = rate.Every(s.idleOpts.Interval)
	}
	limiter := rate.NewLimiter(every, 1)

	stop, err := s.platform.WatchForeground(ctx, s.idleOpts, func(sample Sample) {
		if limiter.Allow() {
			onAccuracy(sample.AccuracyMeters)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("watch idle accuracy: %w", err)
	}
	return newStopFunc(stop), nil
}

func (s *Source) backgroundOpts() WatchOptions {
	opts := s.bgOpts
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	return opts
}

type subscription struct {
	source   *Source
	bridge   chan []Sample
	done     chan struct{}
	pumpDone chan struct{}
	onSample func(Sample)
	once     sync.Once

	// guarded by source.mu
	stopFg func()
	stopBg func()
}

func (sub *subscription) offerOne(sample Sample) {
	sub.offer([]Sample{sample})
}

func (sub *subscription) offer(batch []Sample) {
	if len(batch) == 0 {
		return
	}
	select {
	case sub.bridge <- batch:
	default:
		metrics.SamplesDropped.WithLabelValues("bridge_full").Add(float64(len(batch)))
	}
}

func (sub *subscription) pump() {
	defer close(sub.pumpDone)
	for {
		select {
		case <-sub.done:
			return
		case batch := <-sub.bridge:
			for _, sample := range batch {
				sub.onSample(sample)
			}
		}
	}
}

// Unsubscribe stops platform delivery and waits for the pump, so no callback
// runs after it returns.
func (sub *subscription) Unsubscribe() {
	sub.once.Do(func() {
		s := sub.source
		s.mu.Lock()
		if s.sub == sub {
			s.sub = nil
		}
		stopFg, stopBg := sub.stopFg, sub.stopBg
		sub.stopFg, sub.stopBg = nil, nil
		s.mu.Unlock()

		if stopFg != nil {
			stopFg()
		}
		if stopBg != nil {
			stopBg()
		}
		close(sub.done)
		<-sub.pumpDone
	})
}
