package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "runtracker_sessions_recording",
		Help: "Number of run sessions currently recording or paused",
	})

	SamplesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "runtracker_samples_processed_total",
		Help: "Position samples applied to a session",
	})

	SamplesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runtracker_samples_dropped_total",
		Help: "Position samples discarded before reaching session state",
	}, []string{"reason"})

	TicksDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "runtracker_clock_ticks_total",
		Help: "Session clock ticks delivered while recording",
	})

	StepAdvances = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runtracker_workout_step_advances_total",
		Help: "Workout step transitions",
	}, []string{"cause"})

	BackgroundFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "runtracker_background_fallbacks_total",
		Help: "Times background delivery was unavailable and foreground delivery was kept",
	})
)
