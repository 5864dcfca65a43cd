package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasprocure/caseflow/internal/budget"
	"github.com/atlasprocure/caseflow/internal/domain"
	"github.com/atlasprocure/caseflow/internal/guard"
	"github.com/atlasprocure/caseflow/internal/route"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestLoad_Valid(t *testing.T) {
	path := writeConfig(t, `{
		"db_path": "/tmp/caseflow.db",
		"listen_addr": ":9999",
		"budget_ceiling_units": 5000,
		"iteration_ceiling": 12,
		"fine_cycle_key": true
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/caseflow.db", cfg.DBPath)
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, int64(5000), cfg.BudgetCeilingUnits)
	assert.Equal(t, 12, cfg.IterationCeiling)
	assert.True(t, cfg.FineCycleKey)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.json")
	assert.Error(t, err)
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := writeConfig(t, `{not valid json}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingDBPath(t *testing.T) {
	path := writeConfig(t, `{"listen_addr": ":9810"}`)

	_, err := Load(path)
	require.Error(t, err)
	engineErr, ok := err.(*domain.EngineError)
	require.True(t, ok, "expected EngineError, got %T", err)
	assert.Equal(t, domain.ErrConfigInvalid.Code, engineErr.Code)
}

func TestLoad_BadPolicyDir(t *testing.T) {
	path := writeConfig(t, `{
		"db_path": "/tmp/caseflow.db",
		"policy_dir": "/nonexistent/policies"
	}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigInvalid)
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, `{"db_path": "/tmp/caseflow.db"}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9810", cfg.ListenAddr)
	assert.Equal(t, int64(budget.DefaultCeilingUnits), cfg.BudgetCeilingUnits)
	assert.Equal(t, guard.DefaultIterationCeiling, cfg.IterationCeiling)
	assert.Equal(t, guard.DefaultVisitedWindow, cfg.VisitedWindow)
	assert.Equal(t, route.LowConfidenceThreshold, cfg.EscalateBelowConfidence)
	assert.Empty(t, cfg.PolicyDir)
	assert.False(t, cfg.FineCycleKey)
}
