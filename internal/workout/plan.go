package workout

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"backend-runtracker/internal/db"

	"github.com/jackc/pgx/v5"
	"gopkg.in/yaml.v3"
)

var ErrPlanNotFound = errors.New("workout plan not found")

// Plan is a named list of steps supplied by the training-plan subsystem.
type Plan struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Steps []Step `json:"steps" yaml:"steps"`
}

// normalize orders steps and numbers the ones without an explicit order.
func (p *Plan) normalize() {
	for i := range p.Steps {
		if p.Steps[i].Order == 0 {
			p.Steps[i].Order = i + 1
		}
	}
	sort.SliceStable(p.Steps, func(i, j int) bool { return p.Steps[i].Order < p.Steps[j].Order })
}

func ParsePlan(data []byte) (*Plan, error) {
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parsing plan: %w", err)
	}
	plan.normalize()
	return &plan, nil
}

// LoadPlanFile reads a YAML plan such as:
//
//	name: intervals
//	steps:
//	  - label: warm up
//	    duration: 5 min
//	    effort: easy
func LoadPlanFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}
	return ParsePlan(data)
}

// PlanStore reads plans from the training-plan tables.
type PlanStore struct {
	db db.Querier
}

func NewPlanStore(q db.Querier) *PlanStore {
	return &PlanStore{db: q}
}

func (s *PlanStore) Plan(ctx context.Context, id string) (*Plan, error) {
	plan := Plan{}
	row := s.db.QueryRow(ctx, `SELECT id, name FROM workout_plans WHERE id=$1`, id)
	if err := row.Scan(&plan.ID, &plan.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT step_order, label, COALESCE(duration,''), COALESCE(distance_m,0), COALESCE(effort,''), COALESCE(notes,'')
		FROM workout_plan_steps WHERE plan_id=$1
		ORDER BY step_order
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var step Step
		if err := rows.Scan(&step.Order, &step.Label, &step.Duration, &step.DistanceMeters, &step.Effort, &step.Notes); err != nil {
			return nil, err
		}
		plan.Steps = append(plan.Steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	plan.normalize()
	return &plan, nil
}
