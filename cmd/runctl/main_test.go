package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"backend-runtracker/internal/auth"
	"backend-runtracker/internal/tracking"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const equatorTrack = `points:
  - {lat: 0, lng: 0, accuracy_m: 5}
  - {lat: 0, lng: 0.001, accuracy_m: 5}
  - {lat: 0, lng: 0.002, accuracy_m: 6}
`

const intervalsPlan = `name: intervals
steps:
  - label: warm up
    duration: 5 min
  - label: fast
    duration: 60 sec
  - label: cool down
    duration: whenever
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := newRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSimulateFreeRun(t *testing.T) {
	track := writeFile(t, "track.yaml", equatorTrack)

	out, err := execute(t, "simulate", "--track", track, "--interval", "5ms", "--tick", "5ms")
	require.NoError(t, err)

	var summary tracking.RunSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 222.0, summary.DistanceMeters)
	assert.Len(t, summary.Path, 3)
	assert.False(t, summary.Structured)
	assert.Equal(t, "simulator", summary.RunnerID)
}

func TestSimulateGuidedBackground(t *testing.T) {
	track := writeFile(t, "track.yaml", equatorTrack)
	plan := writeFile(t, "plan.yaml", intervalsPlan)

	out, err := execute(t, "simulate", "--track", track, "--plan", plan, "--background",
		"--interval", "5ms", "--tick", "5ms")
	require.NoError(t, err)

	var summary tracking.RunSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.True(t, summary.Structured)
	assert.Len(t, summary.Path, 3)
	assert.Equal(t, 222.0, summary.DistanceMeters)
}

func TestSimulateRequiresTrack(t *testing.T) {
	_, err := execute(t, "simulate")
	assert.Error(t, err)

	empty := writeFile(t, "empty.yaml", "points: []\n")
	_, err = execute(t, "simulate", "--track", empty)
	assert.ErrorContains(t, err, "no points")
}

func TestPlanCommand(t *testing.T) {
	plan := writeFile(t, "plan.yaml", intervalsPlan)

	out, err := execute(t, "plan", plan, "--default-seconds", "120")
	require.NoError(t, err)
	assert.Contains(t, out, "warm up")
	assert.Contains(t, out, "300")
	assert.Contains(t, out, "60")
	assert.True(t, strings.Contains(out, "480"), "total includes the default for the unparseable step")
}

func TestTokenCommand(t *testing.T) {
	out, err := execute(t, "token", "--runner", "runner-7", "--secret", "s3cret", "--ttl", "1m")
	require.NoError(t, err)

	runnerID, err := auth.NewService("s3cret").ValidateAccessToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "runner-7", runnerID)

	t.Setenv("JWT_SECRET", "")
	_, err = execute(t, "token", "--runner", "runner-7")
	assert.Error(t, err)
}

func TestSimulateSinglePoint(t *testing.T) {
	start := time.Now()
	_, err := execute(t, "simulate", "--track", writeFile(t, "t.yaml", "points:\n  - {lat: 1, lng: 1}\n"), "--interval", "1ms")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), settleTimeout)
}
