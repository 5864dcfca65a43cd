// Package config loads the engine's runtime configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/atlasprocure/caseflow/internal/budget"
	"github.com/atlasprocure/caseflow/internal/domain"
	"github.com/atlasprocure/caseflow/internal/guard"
	"github.com/atlasprocure/caseflow/internal/route"
)

// Config holds the engine's runtime configuration.
type Config struct {
	DBPath             string `json:"db_path"`
	ListenAddr         string `json:"listen_addr"`
	PolicyDir          string `json:"policy_dir"`
	BudgetCeilingUnits int64  `json:"budget_ceiling_units"`
	IterationCeiling   int    `json:"iteration_ceiling"`
	VisitedWindow      int    `json:"visited_window"`
	FineCycleKey       bool   `json:"fine_cycle_key"`

	// Results below this confidence escalate to the clarifier.
	EscalateBelowConfidence float64 `json:"escalate_below_confidence"`
}

// Load reads a JSON config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config JSON: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":9810"
	}
	if c.BudgetCeilingUnits == 0 {
		c.BudgetCeilingUnits = budget.DefaultCeilingUnits
	}
	if c.IterationCeiling == 0 {
		c.IterationCeiling = guard.DefaultIterationCeiling
	}
	if c.VisitedWindow == 0 {
		c.VisitedWindow = guard.DefaultVisitedWindow
	}
	if c.EscalateBelowConfidence == 0 {
		c.EscalateBelowConfidence = route.LowConfidenceThreshold
	}
}

func (c *Config) validate() error {
	var problems []string

	if c.DBPath == "" {
		problems = append(problems, "db_path is required")
	}
	if c.BudgetCeilingUnits < 0 {
		problems = append(problems, "budget_ceiling_units must not be negative")
	}
	if c.IterationCeiling < 0 {
		problems = append(problems, "iteration_ceiling must not be negative")
	}
	if c.VisitedWindow < 0 {
		problems = append(problems, "visited_window must not be negative")
	}
	if c.EscalateBelowConfidence < 0 || c.EscalateBelowConfidence > 1 {
		problems = append(problems, "escalate_below_confidence must be within (0, 1]")
	}
	if c.PolicyDir != "" {
		if info, err := os.Stat(c.PolicyDir); err != nil || !info.IsDir() {
			problems = append(problems, "policy_dir is not a readable directory")
		}
	}

	if len(problems) > 0 {
		return &domain.EngineError{
			Code:    domain.ErrConfigInvalid.Code,
			Message: fmt.Sprintf("%s: %v", domain.ErrConfigInvalid.Message, problems),
		}
	}
	return nil
}
