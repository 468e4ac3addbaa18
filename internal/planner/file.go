package planner

import (
	"context"
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/railmind/internal/orchestrator"
	"github.com/ShayCichocki/railmind/pkg/models"
)

// FilePlanner serves a fixed plan read from a YAML or JSON file.
type FilePlanner struct {
	plan *models.Plan
}

var _ orchestrator.Planner = (*FilePlanner)(nil)

// NewFilePlanner loads and checks the plan at path.
func NewFilePlanner(path string) (*FilePlanner, error) {
	plan, err := LoadPlan(path)
	if err != nil {
		return nil, err
	}
	return &FilePlanner{plan: plan}, nil
}

// Plan returns a copy of the loaded plan.
func (p *FilePlanner) Plan(context.Context, orchestrator.PlanRequest) (models.PlanOutcome, error) {
	return models.ValidPlan(p.plan.Clone()), nil
}

// LoadPlan reads a plan file. JSON is accepted since it is a subset of YAML.
func LoadPlan(path string) (*models.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	plan, err := ParsePlan(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return plan, nil
}

// ParsePlan decodes and normalizes plan bytes.
func ParsePlan(data []byte) (*models.Plan, error) {
	var plan models.Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if err := Normalize(&plan); err != nil {
		return nil, err
	}
	return &plan, nil
}
