package tracking

import (
	"time"

	"backend-runtracker/internal/location"
	"backend-runtracker/internal/workout"
)

type State int

const (
	Idle State = iota
	Recording
	Paused
	Stopped
)

func (s State) String() string {
	switch s {
	case Recording:
		return "recording"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return "idle"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// RunSummary is produced once, by Stop, for the persistence subsystem.
type RunSummary struct {
	ID             string            `json:"id"`
	RunnerID       string            `json:"runner_id,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	EndedAt        time.Time         `json:"ended_at"`
	ElapsedSeconds int               `json:"elapsed_seconds"`
	DistanceMeters float64           `json:"distance_m"`
	Path           []location.Sample `json:"path"`
	Structured     bool              `json:"structured"`
	StepsCompleted int               `json:"steps_completed"`
}

// Snapshot is a consistent read of live session state.
type Snapshot struct {
	ID                  string            `json:"id,omitempty"`
	RunnerID            string            `json:"runner_id,omitempty"`
	State               State             `json:"state"`
	IsRunning           bool              `json:"is_running"`
	IsPaused            bool              `json:"is_paused"`
	StartedAt           time.Time         `json:"started_at,omitempty"`
	DistanceMeters      float64           `json:"distance_m"`
	ElapsedSeconds      int               `json:"elapsed_seconds"`
	AccuracyMeters      float64           `json:"accuracy_m"`
	PathLength          int               `json:"path_length"`
	IsStructuredWorkout bool              `json:"is_structured_workout"`
	CurrentStep         *workout.Progress `json:"current_step,omitempty"`
}
