package workout

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const intervalPlan = `
id: plan-1
name: intervals
steps:
  - order: 2
    label: fast
    duration: 60 sec
    effort: hard
  - order: 1
    label: warm up
    duration: 5 min
    effort: easy
  - order: 3
    label: cool down
    duration: whenever
    effort: easy
    notes: walk it out
`

func TestParsePlanOrdersSteps(t *testing.T) {
	plan, err := ParsePlan([]byte(intervalPlan))
	require.NoError(t, err)

	assert.Equal(t, "intervals", plan.Name)
	require.Len(t, plan.Steps, 3)
	assert.Equal(t, "warm up", plan.Steps[0].Label)
	assert.Equal(t, "fast", plan.Steps[1].Label)
	assert.Equal(t, "walk it out", plan.Steps[2].Notes)
}

func TestParsePlanNumbersUnorderedSteps(t *testing.T) {
	plan, err := ParsePlan([]byte("steps:\n  - label: a\n  - label: b\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Steps[0].Order)
	assert.Equal(t, 2, plan.Steps[1].Order)
}

func TestParsePlanInvalid(t *testing.T) {
	_, err := ParsePlan([]byte("steps: [unclosed"))
	assert.Error(t, err)
}

func TestLoadPlanFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(intervalPlan), 0o600))

	plan, err := LoadPlanFile(path)
	require.NoError(t, err)
	assert.Len(t, plan.Steps, 3)

	_, err = LoadPlanFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPlanStore(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT id, name FROM workout_plans`).
		WithArgs("plan-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).AddRow("plan-1", "intervals"))
	mock.ExpectQuery(`SELECT step_order, label`).
		WithArgs("plan-1").
		WillReturnRows(pgxmock.NewRows([]string{"step_order", "label", "duration", "distance_m", "effort", "notes"}).
			AddRow(1, "warm up", "5 min", 0.0, "easy", "").
			AddRow(2, "fast", "60 sec", 400.0, "hard", "stay tall"))

	plan, err := NewPlanStore(mock).Plan(context.Background(), "plan-1")
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, 400.0, plan.Steps[1].DistanceMeters)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanStoreNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT id, name FROM workout_plans`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = NewPlanStore(mock).Plan(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestPlanStoreStepsError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT id, name FROM workout_plans`).
		WithArgs("plan-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).AddRow("plan-1", "intervals"))
	mock.ExpectQuery(`SELECT step_order, label`).
		WithArgs("plan-1").
		WillReturnError(errors.New("boom"))

	_, err = NewPlanStore(mock).Plan(context.Background(), "plan-1")
	assert.Error(t, err)
}
