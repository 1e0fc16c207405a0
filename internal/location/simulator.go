package location

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errSimulatedNoBackground = errors.New("simulated device has no background task support")

// Simulator is an in-memory Platform. Samples pushed with Emit reach every
// foreground watcher immediately and the background task in batches.
type Simulator struct {
	mu           sync.Mutex
	deny         bool
	noBackground bool
	prompts      int
	nextID       int
	watchers     map[int]func(Sample)
	bgEmit       func([]Sample)
	bgBatch      int
	pending      []Sample
}

func NewSimulator() *Simulator {
	return &Simulator{watchers: map[int]func(Sample){}}
}

// Deny makes subsequent permission prompts decline.
func (sim *Simulator) Deny(deny bool) {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	sim.deny = deny
}

// DisableBackground makes StartBackground fail.
func (sim *Simulator) DisableBackground(disable bool) {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	sim.noBackground = disable
}

// Prompts reports how many times permission was requested.
func (sim *Simulator) Prompts() int {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	return sim.prompts
}

// Watchers reports the number of active foreground watchers.
func (sim *Simulator) Watchers() int {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	return len(sim.watchers)
}

// BackgroundActive reports whether a background task is running.
func (sim *Simulator) BackgroundActive() bool {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	return sim.bgEmit != nil
}

func (sim *Simulator) RequestPermission(_ context.Context) (bool, error) {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	sim.prompts++
	return !sim.deny, nil
}

func (sim *Simulator) WatchForeground(_ context.Context, _ WatchOptions, emit func(Sample)) (func(), error) {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	id := sim.nextID
	sim.nextID++
	sim.watchers[id] = emit
	return func() {
		sim.mu.Lock()
		defer sim.mu.Unlock()
		delete(sim.watchers, id)
	}, nil
}

func (sim *Simulator) StartBackground(_ context.Context, opts WatchOptions, emitBatch func([]Sample)) (func(), error) {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	if sim.noBackground {
		return nil, errSimulatedNoBackground
	}
	sim.bgEmit = emitBatch
	sim.bgBatch = opts.BatchSize
	sim.pending = nil
	return func() {
		sim.mu.Lock()
		defer sim.mu.Unlock()
		sim.bgEmit = nil
		sim.pending = nil
	}, nil
}

// Emit delivers one sample to the device's active watchers.
func (sim *Simulator) Emit(sample Sample) {
	sim.mu.Lock()
	watchers := make([]func(Sample), 0, len(sim.watchers))
	for _, w := range sim.watchers {
		watchers = append(watchers, w)
	}
	var batch []Sample
	bgEmit := sim.bgEmit
	if bgEmit != nil {
		sim.pending = append(sim.pending, sample)
		if len(sim.pending) >= sim.bgBatch {
			batch = sim.pending
			sim.pending = nil
		}
	}
	sim.mu.Unlock()

	for _, w := range watchers {
		w(sample)
	}
	if batch != nil {
		bgEmit(batch)
	}
}

// Grant answers future permission prompts.
func (sim *Simulator) Grant(_ context.Context, granted bool) error {
	sim.Deny(!granted)
	return nil
}

// Publish and Append both reach whichever delivery path is active; the
// simulator has no separate live and durable channels.
func (sim *Simulator) Publish(_ context.Context, sample Sample) error {
	sim.Emit(sample)
	return nil
}

func (sim *Simulator) Append(_ context.Context, sample Sample) error {
	sim.Emit(sample)
	return nil
}

// FlushBackground hands any partially filled batch to the background task.
func (sim *Simulator) FlushBackground() {
	sim.mu.Lock()
	batch := sim.pending
	sim.pending = nil
	bgEmit := sim.bgEmit
	sim.mu.Unlock()

	if bgEmit != nil && len(batch) > 0 {
		bgEmit(batch)
	}
}

// Replay emits the track at the given interval, stamping each sample with the
// emit time when it has none. It returns when the track ends or ctx is done.
func (sim *Simulator) Replay(ctx context.Context, track []Sample, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for _, sample := range track {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if sample.CapturedAt.IsZero() {
				sample.CapturedAt = now
			}
			sim.Emit(sample)
		}
	}
	sim.FlushBackground()
	return nil
}
