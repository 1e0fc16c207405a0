package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"backend-runtracker/internal/location"
	"backend-runtracker/internal/metrics"
	"backend-runtracker/internal/workout"

	"github.com/google/uuid"
)

// PositionSource is what a run session needs from the location layer.
// *location.Source implements it.
type PositionSource interface {
	RequestAccess(ctx context.Context) (bool, error)
	Subscribe(ctx context.Context, onSample func(location.Sample)) (location.Subscription, error)
	EnterBackgroundMode(ctx context.Context) error
	ExitBackgroundMode(ctx context.Context) error
	WatchAccuracy(ctx context.Context, onAccuracy func(float64)) (location.Subscription, error)
}

const defaultSampleBuffer = 256

type options struct {
	interval    time.Duration
	newTicker   TickerFunc
	buffer      int
	defaultStep int
	logger      *slog.Logger
	observer    func(Snapshot)
	runnerID    string
	now         func() time.Time
}

type Option func(*options)

func WithTickInterval(d time.Duration) Option {
	return func(o *options) { o.interval = d }
}

func WithTicker(fn TickerFunc) Option {
	return func(o *options) { o.newTicker = fn }
}

func WithSampleBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.buffer = n
		}
	}
}

func WithDefaultStepDuration(seconds int) Option {
	return func(o *options) { o.defaultStep = seconds }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithObserver registers a callback that receives a snapshot after every
// state change. It runs on the session loop: it must return quickly and must
// not call back into the session.
func WithObserver(fn func(Snapshot)) Option {
	return func(o *options) { o.observer = fn }
}

func WithRunnerID(id string) Option {
	return func(o *options) { o.runnerID = id }
}

func WithNow(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

type stampedSample struct {
	epoch  uint64
	sample location.Sample
}

type command struct {
	fn   func()
	done chan struct{}
}

// RunSession records one run at a time. A single loop goroutine owns all
// session state: control operations and reads are executed on it as commands,
// samples arrive on a bounded channel and ticks come from the session clock.
// Every subscription is tagged with an epoch, and pause, stop and reset move
// to a new epoch so callbacks still in flight from an old subscription are
// discarded.
type RunSession struct {
	source   PositionSource
	logger   *slog.Logger
	observer func(Snapshot)
	runnerID string
	now      func() time.Time

	// serializes control operations across their async boundaries
	ops sync.Mutex

	cmds      chan command
	samples   chan stampedSample
	accuracy  chan float64
	quit      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once
	final     Snapshot

	// loop-owned
	state     State
	id        string
	epoch     uint64
	startedAt time.Time
	distance  DistanceAccumulator
	clock     *SessionClock
	steps     *workout.Engine
	path      []location.Sample
	accuracyM float64
	sub       location.Subscription
	idle      location.Subscription
}

func NewRunSession(source PositionSource, opts ...Option) *RunSession {
	o := options{
		interval: time.Second,
		buffer:   defaultSampleBuffer,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &RunSession{
		source:   source,
		logger:   o.logger,
		observer: o.observer,
		runnerID: o.runnerID,
		now:      o.now,
		cmds:     make(chan command),
		samples:  make(chan stampedSample, o.buffer),
		accuracy: make(chan float64, 1),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
		clock:    NewSessionClock(o.interval, o.newTicker),
		steps:    workout.NewEngine(workout.WithDefaultDuration(o.defaultStep), workout.WithLogger(o.logger)),
	}
	s.clock.OnTick(func(int) {
		metrics.TicksDelivered.Inc()
		s.steps.Tick()
	})

	go s.loop()
	return s
}

func (s *RunSession) loop() {
	defer close(s.loopDone)
	for {
		select {
		case <-s.quit:
			return
		case cmd := <-s.cmds:
			s.drain()
			cmd.fn()
			close(cmd.done)
		case in := <-s.samples:
			s.applySample(in)
		case acc := <-s.accuracy:
			if s.state != Recording {
				s.accuracyM = acc
				s.publish()
			}
		case <-s.clock.C():
			s.clock.Tick()
			s.publish()
		}
	}
}

// drain applies samples already enqueued so a command observes every sample
// delivered before it was issued.
func (s *RunSession) drain() {
	for {
		select {
		case in := <-s.samples:
			s.applySample(in)
		default:
			return
		}
	}
}

func (s *RunSession) applySample(in stampedSample) {
	if in.epoch != s.epoch || s.state != Recording {
		metrics.SamplesDropped.WithLabelValues("stale").Inc()
		return
	}
	s.distance.Add(in.sample)
	s.path = append(s.path, in.sample)
	s.accuracyM = in.sample.AccuracyMeters
	metrics.SamplesProcessed.Inc()
	s.publish()
}

func (s *RunSession) publish() {
	if s.observer != nil {
		s.observer(s.snapshot())
	}
}

func (s *RunSession) snapshot() Snapshot {
	snap := Snapshot{
		ID:                  s.id,
		RunnerID:            s.runnerID,
		State:               s.state,
		IsRunning:           s.state == Recording || s.state == Paused,
		IsPaused:            s.state == Paused,
		StartedAt:           s.startedAt,
		DistanceMeters:      s.distance.Total(),
		ElapsedSeconds:      s.clock.Elapsed(),
		AccuracyMeters:      s.accuracyM,
		PathLength:          len(s.path),
		IsStructuredWorkout: s.steps.Structured(),
	}
	if p, ok := s.steps.Progress(); ok {
		snap.CurrentStep = &p
	}
	return snap
}

func (s *RunSession) exec(fn func()) error {
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case s.cmds <- cmd:
	case <-s.quit:
		return ErrSessionClosed
	}
	<-cmd.done
	return nil
}

// enqueue is the only path from a position callback into the session. It
// never blocks; a full channel drops the sample.
func (s *RunSession) enqueue(epoch uint64) func(location.Sample) {
	return func(sample location.Sample) {
		select {
		case s.samples <- stampedSample{epoch: epoch, sample: sample}:
		default:
			metrics.SamplesDropped.WithLabelValues("session_full").Inc()
		}
	}
}

// attach subscribes for the given epoch. A failed subscription leaves the
// session recording time only.
func (s *RunSession) attach(ctx context.Context, epoch uint64) {
	sub, err := s.source.Subscribe(ctx, s.enqueue(epoch))
	if err != nil {
		s.logger.Warn("position stream unavailable, recording time only", "runner", s.runnerID, "epoch", epoch, "error", err)
		return
	}

	attached := false
	err = s.exec(func() {
		if s.epoch == epoch {
			s.sub = sub
			attached = true
		}
	})
	if err != nil || !attached {
		sub.Unsubscribe()
	}
}

// Start begins recording. Steps, when given, turn on guided mode.
func (s *RunSession) Start(ctx context.Context, steps ...workout.Step) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	var state State
	if err := s.exec(func() { state = s.state }); err != nil {
		return err
	}
	switch state {
	case Recording, Paused:
		return nil
	case Stopped:
		return ErrNotReset
	}

	granted, err := s.source.RequestAccess(ctx)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return err
		}
		return fmt.Errorf("request location access: %w", err)
	}
	if !granted {
		return ErrPermissionDenied
	}

	var epoch uint64
	var id string
	err = s.exec(func() {
		s.epoch++
		epoch = s.epoch
		s.id = uuid.NewString()
		id = s.id
		s.startedAt = s.now()
		s.distance.Reset()
		s.path = nil
		s.clock.Start()
		s.steps.Initialize(steps)
		s.state = Recording
		metrics.SessionsActive.Inc()
		s.publish()
	})
	if err != nil {
		return err
	}

	s.attach(ctx, epoch)
	s.logger.Info("run started", "session", id, "runner", s.runnerID, "steps", len(steps))
	return nil
}

// Pause detaches the stream and clock, keeping everything recorded so far.
func (s *RunSession) Pause() error {
	s.ops.Lock()
	defer s.ops.Unlock()

	var sub location.Subscription
	err := s.exec(func() {
		if s.state != Recording {
			return
		}
		s.epoch++
		sub, s.sub = s.sub, nil
		s.clock.Pause()
		s.state = Paused
		s.publish()
	})
	if sub != nil {
		sub.Unsubscribe()
	}
	return err
}

// Resume reattaches the stream and clock after Pause.
func (s *RunSession) Resume(ctx context.Context) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	var epoch uint64
	resumed := false
	err := s.exec(func() {
		if s.state != Paused {
			return
		}
		s.epoch++
		epoch = s.epoch
		s.clock.Resume()
		s.state = Recording
		resumed = true
		s.publish()
	})
	if err != nil {
		return err
	}
	if resumed {
		s.attach(ctx, epoch)
	}
	return nil
}

// Stop finishes the run and returns its summary. The stream and clock are
// released before it returns.
func (s *RunSession) Stop() (RunSummary, error) {
	s.ops.Lock()
	defer s.ops.Unlock()

	var summary RunSummary
	var sub location.Subscription
	stopped := false
	err := s.exec(func() {
		if s.state != Recording && s.state != Paused {
			return
		}
		s.epoch++
		sub, s.sub = s.sub, nil
		elapsed := s.clock.Stop()
		s.state = Stopped
		summary = RunSummary{
			ID:             s.id,
			RunnerID:       s.runnerID,
			StartedAt:      s.startedAt,
			EndedAt:        s.now(),
			ElapsedSeconds: elapsed,
			DistanceMeters: math.Round(s.distance.Total()),
			Path:           append([]location.Sample(nil), s.path...),
			Structured:     s.steps.Structured(),
			StepsCompleted: s.steps.Completed(),
		}
		stopped = true
		metrics.SessionsActive.Dec()
		s.publish()
	})
	if sub != nil {
		sub.Unsubscribe()
	}
	if err != nil {
		return RunSummary{}, err
	}
	if !stopped {
		return RunSummary{}, ErrNotRecording
	}

	s.logger.Info("run stopped", "session", summary.ID, "runner", s.runnerID,
		"elapsed_seconds", summary.ElapsedSeconds, "distance_m", summary.DistanceMeters, "samples", len(summary.Path))
	return summary, nil
}

// Reset discards the current run without a summary and returns to Idle.
func (s *RunSession) Reset() error {
	s.ops.Lock()
	defer s.ops.Unlock()

	var sub location.Subscription
	err := s.exec(func() {
		if s.state == Recording || s.state == Paused {
			metrics.SessionsActive.Dec()
		}
		s.epoch++
		sub, s.sub = s.sub, nil
		s.clock.Clear()
		s.distance.Reset()
		s.path = nil
		s.steps.Initialize(nil)
		s.id = ""
		s.startedAt = time.Time{}
		s.state = Idle
		s.publish()
	})
	if sub != nil {
		sub.Unsubscribe()
	}
	return err
}

// SkipToNextStep moves a guided run to its next step.
func (s *RunSession) SkipToNextStep() error {
	return s.exec(func() {
		if s.state != Recording && s.state != Paused {
			return
		}
		if s.steps.State() == workout.Running {
			s.steps.SkipToNext()
			s.publish()
		}
	})
}

// EnterBackground switches position delivery to the background channel. When
// the platform cannot deliver in the background the run keeps recording on
// foreground delivery; the result reports which mode is active.
func (s *RunSession) EnterBackground(ctx context.Context) bool {
	if err := s.source.EnterBackgroundMode(ctx); err != nil {
		s.logger.Warn("staying on foreground location delivery", "session", s.currentID(), "error", err)
		return false
	}
	return true
}

// ExitBackground returns position delivery to the foreground watcher.
func (s *RunSession) ExitBackground(ctx context.Context) bool {
	if err := s.source.ExitBackgroundMode(ctx); err != nil {
		s.logger.Warn("could not leave background location delivery", "session", s.currentID(), "error", err)
		return false
	}
	return true
}

// WatchAccuracy starts the idle accuracy watcher once access was granted.
// Readings are shown while no run is recording.
func (s *RunSession) WatchAccuracy(ctx context.Context) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	watching := false
	if err := s.exec(func() { watching = s.idle != nil }); err != nil {
		return err
	}
	if watching {
		return nil
	}

	sub, err := s.source.WatchAccuracy(ctx, func(acc float64) {
		select {
		case s.accuracy <- acc:
		default:
		}
	})
	if err != nil {
		return err
	}
	if err := s.exec(func() { s.idle = sub }); err != nil {
		sub.Unsubscribe()
		return err
	}
	return nil
}

// Watching reports whether the idle accuracy watcher is running.
func (s *RunSession) Watching() bool {
	watching := false
	_ = s.exec(func() { watching = s.idle != nil })
	return watching
}

// Close releases all subscriptions and stops the session loop.
func (s *RunSession) Close() {
	s.closeOnce.Do(func() {
		s.ops.Lock()
		defer s.ops.Unlock()

		var subs []location.Subscription
		_ = s.exec(func() {
			if s.state == Recording || s.state == Paused {
				metrics.SessionsActive.Dec()
			}
			s.epoch++
			for _, sub := range []location.Subscription{s.sub, s.idle} {
				if sub != nil {
					subs = append(subs, sub)
				}
			}
			s.sub, s.idle = nil, nil
			s.clock.Pause()
			s.final = s.snapshot()
		})
		close(s.quit)
		<-s.loopDone

		for _, sub := range subs {
			sub.Unsubscribe()
		}
	})
}

func (s *RunSession) currentID() string {
	var id string
	_ = s.exec(func() { id = s.id })
	return id
}

// Snapshot returns a consistent view of the session. After Close it returns
// the last state seen.
func (s *RunSession) Snapshot() Snapshot {
	var snap Snapshot
	if err := s.exec(func() { snap = s.snapshot() }); err != nil {
		<-s.loopDone
		return s.final
	}
	return snap
}

func (s *RunSession) State() State { return s.Snapshot().State }
func (s *RunSession) IsRunning() bool { return s.Snapshot().IsRunning }
func (s *RunSession) IsPaused() bool { return s.Snapshot().IsPaused }
func (s *RunSession) DistanceMeters() float64 { return s.Snapshot().DistanceMeters }
func (s *RunSession) ElapsedSeconds() int { return s.Snapshot().ElapsedSeconds }
func (s *RunSession) AccuracyMeters() float64 { return s.Snapshot().AccuracyMeters }
func (s *RunSession) IsStructuredWorkout() bool {
	return s.Snapshot().IsStructuredWorkout
}

// CurrentStepProgress reports the guided step, or false on a plain run.
func (s *RunSession) CurrentStepProgress() (workout.Progress, bool) {
	snap := s.Snapshot()
	if snap.CurrentStep == nil {
		return workout.Progress{}, false
	}
	return *snap.CurrentStep, true
}
