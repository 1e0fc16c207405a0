package workout

import (
	"log/slog"

	"backend-runtracker/internal/metrics"
)

type State int

const (
	Disabled State = iota
	Running
	Finished
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Finished:
		return "finished"
	default:
		return "disabled"
	}
}

// Progress describes the current step. ElapsedSeconds never exceeds
// DurationSeconds; reaching it advances the workout.
type Progress struct {
	Step            Step `json:"step"`
	Index           int  `json:"index"`
	TotalSteps      int  `json:"total_steps"`
	ElapsedSeconds  int  `json:"elapsed_seconds"`
	DurationSeconds int  `json:"duration_seconds"`
	IsComplete      bool `json:"is_complete"`
}

// Engine tracks progress through a list of steps. It is not safe for
// concurrent use; the owning run session drives it from its own loop.
type Engine struct {
	logger          *slog.Logger
	defaultDuration int

	steps     []Step
	state     State
	progress  Progress
	completed int
}

type Option func(*Engine)

func WithDefaultDuration(seconds int) Option {
	return func(e *Engine) {
		if seconds > 0 {
			e.defaultDuration = seconds
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger:          slog.Default(),
		defaultDuration: DefaultStepDuration,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Initialize loads a workout. An empty list disables guidance entirely.
func (e *Engine) Initialize(steps []Step) {
	e.steps = append([]Step(nil), steps...)
	e.completed = 0
	e.progress = Progress{}
	if len(e.steps) == 0 {
		e.state = Disabled
		return
	}
	e.state = Running
	e.enter(0)
}

func (e *Engine) enter(index int) {
	step := e.steps[index]
	e.progress = Progress{
		Step:            step,
		Index:           index,
		TotalSteps:      len(e.steps),
		DurationSeconds: e.durationOf(step),
	}
}

func (e *Engine) durationOf(step Step) int {
	seconds, err := step.TargetDuration()
	if err != nil {
		e.logger.Warn("step duration unparseable, using default",
			"step", step.Label, "duration", step.Duration, "default_seconds", e.defaultDuration, "error", err)
		return e.defaultDuration
	}
	return seconds
}

// Tick counts one second against the current step and reports whether the
// step expired.
func (e *Engine) Tick() bool {
	if e.state != Running {
		return false
	}
	e.progress.ElapsedSeconds++
	if e.progress.ElapsedSeconds >= e.progress.DurationSeconds {
		e.Advance()
		return true
	}
	return false
}

// Advance completes the current step and moves to the next one, finishing the
// workout after the last step.
func (e *Engine) Advance() {
	e.advance("expired")
}

// SkipToNext performs the same transition as Advance regardless of elapsed time.
func (e *Engine) SkipToNext() {
	e.advance("skipped")
}

func (e *Engine) advance(cause string) {
	if e.state != Running {
		return
	}
	e.progress.IsComplete = true
	e.completed++
	metrics.StepAdvances.WithLabelValues(cause).Inc()

	next := e.progress.Index + 1
	if next >= len(e.steps) {
		e.state = Finished
		e.logger.Debug("workout finished", "steps", len(e.steps))
		return
	}
	e.enter(next)
}

func (e *Engine) State() State { return e.state }

// Structured reports whether a workout was loaded.
func (e *Engine) Structured() bool { return e.state != Disabled }

// Completed is the number of steps finished so far.
func (e *Engine) Completed() int { return e.completed }

// Progress returns the current step's progress, or false when disabled. After
// the workout finishes it keeps returning the last step, marked complete.
func (e *Engine) Progress() (Progress, bool) {
	if e.state == Disabled {
		return Progress{}, false
	}
	return e.progress, true
}
