package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"backend-runtracker/internal/location"
	"backend-runtracker/internal/workout"
)

var (
	ErrPlansUnavailable = errors.New("workout plans are not configured")
	ErrRunnerRequired   = errors.New("runner id required")
)

// Device is a runner's location platform together with the upload side the
// phone uses to feed it.
type Device interface {
	location.Platform
	Grant(ctx context.Context, granted bool) error
	Publish(ctx context.Context, sample location.Sample) error
	Append(ctx context.Context, sample location.Sample) error
}

type DeviceFactory func(runnerID string) Device

type PlanStore interface {
	Plan(ctx context.Context, id string) (*workout.Plan, error)
}

// SummarySink receives every finished run for persistence.
type SummarySink interface {
	Deliver(ctx context.Context, summary RunSummary) error
}

type Broadcaster interface {
	Broadcast(runnerID string, payload []byte)
}

// StartRequest selects the workout for a new run: a stored plan, inline
// steps, or neither for a free run.
type StartRequest struct {
	PlanID string         `json:"plan_id"`
	Steps  []workout.Step `json:"steps"`
}

// Service owns one RunSession per runner.
type Service struct {
	devices     DeviceFactory
	plans       PlanStore
	sink        SummarySink
	hub         Broadcaster
	logger      *slog.Logger
	sessionOpts []Option
	sourceOpts  []location.SourceOption

	mu      sync.Mutex
	closed  bool
	runners map[string]*runner
}

type runner struct {
	device  Device
	session *RunSession
	updates chan Snapshot
	done    chan struct{}
}

type ServiceOption func(*Service)

func WithPlans(plans PlanStore) ServiceOption {
	return func(s *Service) { s.plans = plans }
}

func WithSink(sink SummarySink) ServiceOption {
	return func(s *Service) { s.sink = sink }
}

func WithBroadcaster(hub Broadcaster) ServiceOption {
	return func(s *Service) { s.hub = hub }
}

func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithSessionOptions applies opts to every session the service creates.
func WithSessionOptions(opts ...Option) ServiceOption {
	return func(s *Service) { s.sessionOpts = append(s.sessionOpts, opts...) }
}

func WithSourceOptions(opts ...location.SourceOption) ServiceOption {
	return func(s *Service) { s.sourceOpts = append(s.sourceOpts, opts...) }
}

func NewService(devices DeviceFactory, opts ...ServiceOption) *Service {
	s := &Service{
		devices: devices,
		logger:  slog.Default(),
		runners: map[string]*runner{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) runner(runnerID string) (*runner, error) {
	if runnerID == "" {
		return nil, ErrRunnerRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if r, ok := s.runners[runnerID]; ok {
		return r, nil
	}

	device := s.devices(runnerID)
	source := location.NewSource(device, append([]location.SourceOption{location.WithLogger(s.logger)}, s.sourceOpts...)...)
	r := &runner{
		device:  device,
		updates: make(chan Snapshot, 1),
		done:    make(chan struct{}),
	}
	opts := append([]Option{WithLogger(s.logger)}, s.sessionOpts...)
	opts = append(opts, WithRunnerID(runnerID), WithObserver(r.offer))
	r.session = NewRunSession(source, opts...)
	go s.publish(runnerID, r)

	s.runners[runnerID] = r
	return r, nil
}

// existing returns the runner's session without creating one; nil means the
// runner has no session and is implicitly Idle.
func (s *Service) existing(runnerID string) (*runner, error) {
	if runnerID == "" {
		return nil, ErrRunnerRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	return s.runners[runnerID], nil
}

func idleSnapshot(runnerID string) Snapshot {
	return Snapshot{RunnerID: runnerID, State: Idle}
}

// evict drops an idle runner so its session and publisher goroutines exit.
func (s *Service) evict(runnerID string, r *runner) {
	s.mu.Lock()
	if s.runners[runnerID] != r {
		s.mu.Unlock()
		return
	}
	delete(s.runners, runnerID)
	s.mu.Unlock()

	s.shutdown(runnerID, r)
}

func (s *Service) shutdown(runnerID string, r *runner) {
	r.session.Close()
	close(r.updates)
	<-r.done
	s.logger.Debug("run session closed", "runner", runnerID)
}

// offer keeps only the newest snapshot when the publisher lags. It runs on
// the session loop, which is the only sender.
func (r *runner) offer(snap Snapshot) {
	select {
	case r.updates <- snap:
		return
	default:
	}
	select {
	case <-r.updates:
	default:
	}
	select {
	case r.updates <- snap:
	default:
	}
}

func (s *Service) publish(runnerID string, r *runner) {
	defer close(r.done)
	for snap := range r.updates {
		if s.hub == nil {
			continue
		}
		payload, err := json.Marshal(snap)
		if err != nil {
			s.logger.Error("encode live snapshot", "runner", runnerID, "error", err)
			continue
		}
		s.hub.Broadcast(runnerID, payload)
	}
}

func (s *Service) resolveSteps(ctx context.Context, req StartRequest) ([]workout.Step, error) {
	if req.PlanID == "" {
		return req.Steps, nil
	}
	if s.plans == nil {
		return nil, ErrPlansUnavailable
	}
	plan, err := s.plans.Plan(ctx, req.PlanID)
	if err != nil {
		return nil, fmt.Errorf("load plan %s: %w", req.PlanID, err)
	}
	return plan.Steps, nil
}

func (s *Service) Start(ctx context.Context, runnerID string, req StartRequest) (Snapshot, error) {
	r, err := s.runner(runnerID)
	if err != nil {
		return Snapshot{}, err
	}
	steps, err := s.resolveSteps(ctx, req)
	if err != nil {
		return Snapshot{}, err
	}
	if err := r.session.Start(ctx, steps...); err != nil {
		return Snapshot{}, err
	}
	return r.session.Snapshot(), nil
}

func (s *Service) Pause(runnerID string) (Snapshot, error) {
	r, err := s.existing(runnerID)
	if err != nil {
		return Snapshot{}, err
	}
	if r == nil {
		return idleSnapshot(runnerID), nil
	}
	if err := r.session.Pause(); err != nil {
		return Snapshot{}, err
	}
	return r.session.Snapshot(), nil
}

func (s *Service) Resume(ctx context.Context, runnerID string) (Snapshot, error) {
	r, err := s.runner(runnerID)
	if err != nil {
		return Snapshot{}, err
	}
	if err := r.session.Resume(ctx); err != nil {
		return Snapshot{}, err
	}
	return r.session.Snapshot(), nil
}

// Stop ends the run and hands its summary to the sink. A failed hand-off is
// logged; the summary is still returned to the caller.
func (s *Service) Stop(ctx context.Context, runnerID string) (RunSummary, error) {
	r, err := s.existing(runnerID)
	if err != nil {
		return RunSummary{}, err
	}
	if r == nil {
		return RunSummary{}, ErrNotRecording
	}
	summary, err := r.session.Stop()
	if err != nil {
		return RunSummary{}, err
	}
	if s.sink != nil {
		if err := s.sink.Deliver(ctx, summary); err != nil {
			s.logger.Error("summary hand-off failed", "runner", runnerID, "session", summary.ID, "error", err)
		}
	}
	return summary, nil
}

// Reset discards the runner's run. A runner left Idle without an accuracy
// watcher is released; the next call creates a fresh session.
func (s *Service) Reset(runnerID string) (Snapshot, error) {
	r, err := s.existing(runnerID)
	if err != nil {
		return Snapshot{}, err
	}
	if r == nil {
		return idleSnapshot(runnerID), nil
	}
	if err := r.session.Reset(); err != nil {
		return Snapshot{}, err
	}
	snap := r.session.Snapshot()
	if !r.session.Watching() {
		s.evict(runnerID, r)
	}
	return snap, nil
}

func (s *Service) Skip(runnerID string) (Snapshot, error) {
	r, err := s.existing(runnerID)
	if err != nil {
		return Snapshot{}, err
	}
	if r == nil {
		return idleSnapshot(runnerID), nil
	}
	if err := r.session.SkipToNextStep(); err != nil {
		return Snapshot{}, err
	}
	return r.session.Snapshot(), nil
}

// SetBackground moves the runner's delivery in or out of background mode and
// reports whether the requested mode is now active.
func (s *Service) SetBackground(ctx context.Context, runnerID string, background bool) (bool, error) {
	r, err := s.runner(runnerID)
	if err != nil {
		return false, err
	}
	if background {
		return r.session.EnterBackground(ctx), nil
	}
	return r.session.ExitBackground(ctx), nil
}

func (s *Service) WatchAccuracy(ctx context.Context, runnerID string) (Snapshot, error) {
	r, err := s.runner(runnerID)
	if err != nil {
		return Snapshot{}, err
	}
	if err := r.session.WatchAccuracy(ctx); err != nil {
		return Snapshot{}, err
	}
	return r.session.Snapshot(), nil
}

func (s *Service) State(runnerID string) (Snapshot, error) {
	r, err := s.existing(runnerID)
	if err != nil {
		return Snapshot{}, err
	}
	if r == nil {
		return idleSnapshot(runnerID), nil
	}
	return r.session.Snapshot(), nil
}

// Grant records the device's answer to the location permission prompt.
func (s *Service) Grant(ctx context.Context, runnerID string, granted bool) error {
	r, err := s.runner(runnerID)
	if err != nil {
		return err
	}
	return r.device.Grant(ctx, granted)
}

// Ingest forwards uploaded samples into the runner's device feed: live
// samples to the foreground channel, batched ones to the durable stream.
func (s *Service) Ingest(ctx context.Context, runnerID string, samples []location.Sample, batched bool) (int, error) {
	r, err := s.runner(runnerID)
	if err != nil {
		return 0, err
	}
	push := r.device.Publish
	if batched {
		push = r.device.Append
	}
	for i, sample := range samples {
		if err := push(ctx, sample); err != nil {
			return i, fmt.Errorf("ingest sample %d: %w", i, err)
		}
	}
	return len(samples), nil
}

// Close ends every session. Runs still in progress are discarded without a
// summary.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	runners := s.runners
	s.runners = map[string]*runner{}
	s.mu.Unlock()

	for id, r := range runners {
		s.shutdown(id, r)
	}
}
