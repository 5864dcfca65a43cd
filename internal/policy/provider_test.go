package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasprocure/caseflow/internal/domain"
)

func TestDefaultsPerStage(t *testing.T) {
	p, err := NewProvider("")
	require.NoError(t, err)

	ctx, err := p.ForStage(domain.StageStrategy, "", false)
	require.NoError(t, err)
	assert.Equal(t, []domain.Stage{domain.StagePlanning}, ctx.AllowedNextStages)
	assert.Contains(t, ctx.HumanRequiredFor, "High-impact strategy shifts")
	assert.Empty(t, ctx.AllowedDecisionValues)

	ctx, err = p.ForStage(domain.StagePlanning, "", false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.Stage{domain.StageSourcing, domain.StageNegotiation}, ctx.AllowedNextStages)

	ctx, err = p.ForStage(domain.StageExecution, "", false)
	require.NoError(t, err)
	assert.Empty(t, ctx.AllowedNextStages)
	assert.Contains(t, ctx.HumanRequiredFor, "Savings sign-off")
}

func TestForStageRejectsUnknownStage(t *testing.T) {
	p, err := NewProvider("")
	require.NoError(t, err)
	_, err = p.ForStage(domain.Stage("DTP-99"), "", false)
	assert.ErrorIs(t, err, domain.ErrInvalidStage)
}

func TestRenewalConstrainsStrategies(t *testing.T) {
	p, err := NewProvider("")
	require.NoError(t, err)

	ctx, err := p.ForStage(domain.StageStrategy, "CAT-UNKNOWN", true)
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{domain.StrategyRenew, domain.StrategyRenegotiate, domain.StrategyTerminate},
		ctx.AllowedDecisionValues)
	assert.False(t, ctx.DecisionAllowed(domain.StrategyRFx))
	assert.True(t, ctx.DecisionAllowed(domain.StrategyRenew))

	// Renewal constraint only applies at DTP-01.
	ctx, err = p.ForStage(domain.StagePlanning, "", true)
	require.NoError(t, err)
	assert.Empty(t, ctx.AllowedDecisionValues)
}

func TestCategoryOverrideAllowsRFxForRenewals(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "it-services.yaml"), []byte(`
categories:
  CAT-IT-SW:
    DTP-01:
      allow_rfx_for_renewals: true
`), 0o644))

	p, err := NewProvider(dir)
	require.NoError(t, err)

	ctx, err := p.ForStage(domain.StageStrategy, "CAT-IT-SW", true)
	require.NoError(t, err)
	assert.True(t, ctx.DecisionAllowed(domain.StrategyRFx))

	// Other categories keep the default restriction.
	ctx, err = p.ForStage(domain.StageStrategy, "CAT-FACILITIES", true)
	require.NoError(t, err)
	assert.False(t, ctx.DecisionAllowed(domain.StrategyRFx))
}

func TestStageOverrideFromFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stages.yaml"), []byte(`
stages:
  DTP-03:
    mandatory_checks: ["Supplier MCDM criteria defined", "Diversity quota check"]
`), 0o644))

	p, err := NewProvider(dir)
	require.NoError(t, err)

	ctx, err := p.ForStage(domain.StageSourcing, "", false)
	require.NoError(t, err)
	assert.Contains(t, ctx.MandatoryChecks, "Diversity quota check")
	// Overrides do not clobber untouched fields.
	assert.Equal(t, []domain.Stage{domain.StageNegotiation}, ctx.AllowedNextStages)
}

func TestReloadRejectsInvalidStage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(`
stages:
  DTP-42:
    mandatory_checks: ["nope"]
`), 0o644))

	_, err := NewProvider(dir)
	assert.ErrorIs(t, err, domain.ErrPolicyInvalid)
}

func TestTransitionAllowed(t *testing.T) {
	p, err := NewProvider("")
	require.NoError(t, err)

	ctx, err := p.ForStage(domain.StagePlanning, "", false)
	require.NoError(t, err)
	assert.True(t, ctx.TransitionAllowed(domain.StageSourcing))
	assert.True(t, ctx.TransitionAllowed(domain.StageNegotiation))
	assert.False(t, ctx.TransitionAllowed(domain.StageContracting))
}
