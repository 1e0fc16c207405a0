package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"backend-runtracker/internal/location"
	"backend-runtracker/internal/tracking"
	"backend-runtracker/internal/workout"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const settleTimeout = 2 * time.Second

type simulateOptions struct {
	*rootOptions
	planPath   string
	trackPath  string
	interval   time.Duration
	tick       time.Duration
	background bool
}

// trackFile is the YAML form of a recorded route:
//
//	points:
//	  - {lat: -6.2, lng: 106.8, accuracy_m: 5}
type trackFile struct {
	Points []struct {
		Lat      float64 `yaml:"lat"`
		Lng      float64 `yaml:"lng"`
		Accuracy float64 `yaml:"accuracy_m"`
	} `yaml:"points"`
}

func loadTrack(path string) ([]location.Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading track file: %w", err)
	}
	var tf trackFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parsing track file: %w", err)
	}
	if len(tf.Points) == 0 {
		return nil, errors.New("track has no points")
	}
	track := make([]location.Sample, 0, len(tf.Points))
	for _, p := range tf.Points {
		track = append(track, location.Sample{Latitude: p.Lat, Longitude: p.Lng, AccuracyMeters: p.Accuracy})
	}
	return track, nil
}

func newSimulateCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &simulateOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a recorded track through a run session",
		Long: `Replay a recorded track through a run session on a simulated device
and print the run summary as JSON.

Examples:
  runctl simulate --track park-loop.yaml
  runctl simulate --track park-loop.yaml --plan intervals.yaml --interval 200ms --tick 200ms`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.trackPath, "track", "", "YAML track file (required)")
	_ = cmd.MarkFlagRequired("track")
	cmd.Flags().StringVar(&opts.planPath, "plan", "", "YAML workout plan for a guided run")
	cmd.Flags().DurationVar(&opts.interval, "interval", time.Second, "time between replayed samples")
	cmd.Flags().DurationVar(&opts.tick, "tick", time.Second, "session clock tick")
	cmd.Flags().BoolVar(&opts.background, "background", false, "deliver samples through the background channel")
	return cmd
}

func runSimulate(cmd *cobra.Command, opts *simulateOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.logger(cmd.ErrOrStderr())

	track, err := loadTrack(opts.trackPath)
	if err != nil {
		return err
	}
	var steps []workout.Step
	if opts.planPath != "" {
		plan, err := workout.LoadPlanFile(opts.planPath)
		if err != nil {
			return err
		}
		steps = plan.Steps
	}

	sim := location.NewSimulator()
	source := location.NewSource(sim, location.WithLogger(logger))
	session := tracking.NewRunSession(source,
		tracking.WithTickInterval(opts.tick),
		tracking.WithLogger(logger),
		tracking.WithRunnerID("simulator"),
	)
	defer session.Close()

	if err := session.Start(ctx, steps...); err != nil {
		return err
	}
	if opts.background && !session.EnterBackground(ctx) {
		logger.Warn("background delivery unavailable, replaying in foreground")
	}

	if err := sim.Replay(ctx, track, opts.interval); err != nil {
		return err
	}
	if err := settle(ctx, session, len(track)); err != nil {
		logger.Warn("not every sample reached the session", "error", err)
	}

	summary, err := session.Stop()
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

// settle waits until the session has applied want samples.
func settle(ctx context.Context, session *tracking.RunSession, want int) error {
	ctx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if session.Snapshot().PathLength >= want {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
