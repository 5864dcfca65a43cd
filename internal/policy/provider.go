// Package policy loads per-stage constraint contexts, with optional YAML
// overrides and renewal-specific strategy restrictions.
package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/atlasprocure/caseflow/internal/domain"
)

// StagePolicy is the raw per-stage policy definition, as loaded from defaults
// or a YAML override file.
type StagePolicy struct {
	AllowedNextStages []string `yaml:"allowed_next_stages"`
	MandatoryChecks   []string `yaml:"mandatory_checks"`
	HumanRequiredFor  []string `yaml:"human_required_for"`
	AllowedStrategies []string `yaml:"allowed_strategies"`
	AllowRFxRenewals  bool     `yaml:"allow_rfx_for_renewals"`
}

// CategoryOverride maps stage IDs to partial overrides for one category.
type CategoryOverride map[string]StagePolicy

// File is the on-disk shape of a policy YAML document.
type File struct {
	Stages     map[string]StagePolicy      `yaml:"stages"`
	Categories map[string]CategoryOverride `yaml:"categories"`
}

// defaultStages mirrors the built-in stage policy table. Every lookup starts
// here; overrides layer on top.
func defaultStages() map[string]StagePolicy {
	return map[string]StagePolicy{
		"DTP-01": {
			AllowedNextStages: []string{"DTP-02"},
			MandatoryChecks:   []string{"Ensure category strategy exists"},
			HumanRequiredFor:  []string{"High-impact strategy shifts"},
		},
		"DTP-02": {
			AllowedNextStages: []string{"DTP-03", "DTP-04"},
			MandatoryChecks:   []string{"FMV check", "Market localization"},
			HumanRequiredFor:  []string{"Approach to market decisions"},
		},
		"DTP-03": {
			AllowedNextStages: []string{"DTP-04"},
			MandatoryChecks:   []string{"Supplier MCDM criteria defined"},
		},
		"DTP-04": {
			AllowedNextStages: []string{"DTP-05"},
			MandatoryChecks:   []string{"DDR/HCC flags resolved", "Compliance approvals"},
			HumanRequiredFor:  []string{"Supplier award / negotiation mandate"},
		},
		"DTP-05": {
			AllowedNextStages: []string{"DTP-06"},
			MandatoryChecks:   []string{"Contracting guardrails"},
		},
		"DTP-06": {
			MandatoryChecks:  []string{"Savings validation & reporting"},
			HumanRequiredFor: []string{"Savings sign-off"},
		},
	}
}

// renewalDefaultStrategies are the strategies a renewal-triggered case may
// recommend at DTP-01 unless the category explicitly allows RFx.
var renewalDefaultStrategies = []string{
	domain.StrategyRenew,
	domain.StrategyRenegotiate,
	domain.StrategyTerminate,
}

// Provider resolves a PolicyContext for a stage, category, and trigger.
// Safe for concurrent use; Reload swaps the override set atomically.
type Provider struct {
	mu         sync.RWMutex
	stages     map[string]StagePolicy
	categories map[string]CategoryOverride
	dir        string
}

// NewProvider creates a provider seeded with the built-in defaults. If dir
// is non-empty, policy YAML files found there are layered on immediately.
func NewProvider(dir string) (*Provider, error) {
	p := &Provider{
		stages:     defaultStages(),
		categories: map[string]CategoryOverride{},
		dir:        dir,
	}
	if dir != "" {
		if err := p.Reload(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Dir returns the override directory, empty when running on defaults only.
func (p *Provider) Dir() string {
	return p.dir
}

// Reload re-reads all *.yaml / *.yml files from the override directory and
// swaps in the merged policy set. Sorted filename order makes layering
// deterministic.
func (p *Provider) Reload() error {
	if p.dir == "" {
		return nil
	}
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return domain.WrapEngineError(domain.ErrPolicyInvalid.Code, "read policy dir", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	stages := defaultStages()
	categories := map[string]CategoryOverride{}

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(p.dir, name))
		if err != nil {
			return domain.WrapEngineError(domain.ErrPolicyInvalid.Code, "read policy file "+name, err)
		}
		var f File
		if err := yaml.Unmarshal(data, &f); err != nil {
			return domain.WrapEngineError(domain.ErrPolicyInvalid.Code, "parse policy file "+name, err)
		}
		if err := validateFile(&f); err != nil {
			return domain.WrapEngineError(domain.ErrPolicyInvalid.Code, "invalid policy file "+name, err)
		}
		for stage, sp := range f.Stages {
			stages[stage] = mergeStage(stages[stage], sp)
		}
		for cat, override := range f.Categories {
			if categories[cat] == nil {
				categories[cat] = CategoryOverride{}
			}
			for stage, sp := range override {
				categories[cat][stage] = mergeStage(categories[cat][stage], sp)
			}
		}
	}

	p.mu.Lock()
	p.stages = stages
	p.categories = categories
	p.mu.Unlock()
	return nil
}

func validateFile(f *File) error {
	checkStages := func(m map[string]StagePolicy) error {
		for stage, sp := range m {
			if !domain.IsValidStage(domain.Stage(stage)) {
				return fmt.Errorf("unknown stage %q", stage)
			}
			for _, next := range sp.AllowedNextStages {
				if !domain.IsValidStage(domain.Stage(next)) {
					return fmt.Errorf("stage %q allows unknown next stage %q", stage, next)
				}
			}
		}
		return nil
	}
	if err := checkStages(f.Stages); err != nil {
		return err
	}
	for cat, override := range f.Categories {
		if err := checkStages(override); err != nil {
			return fmt.Errorf("category %q: %w", cat, err)
		}
	}
	return nil
}

// mergeStage layers non-empty fields of override onto base. Bool fields
// always take the override value when the stage appears in a file.
func mergeStage(base, override StagePolicy) StagePolicy {
	out := base
	if len(override.AllowedNextStages) > 0 {
		out.AllowedNextStages = override.AllowedNextStages
	}
	if len(override.MandatoryChecks) > 0 {
		out.MandatoryChecks = override.MandatoryChecks
	}
	if len(override.HumanRequiredFor) > 0 {
		out.HumanRequiredFor = override.HumanRequiredFor
	}
	if len(override.AllowedStrategies) > 0 {
		out.AllowedStrategies = override.AllowedStrategies
	}
	out.AllowRFxRenewals = override.AllowRFxRenewals || base.AllowRFxRenewals
	return out
}

// ForStage resolves the policy context injected into the router and gate.
// isRenewal restricts DTP-01 strategy options to the renewal set, adding RFx
// back only when the category allows it.
func (p *Provider) ForStage(stage domain.Stage, categoryID string, isRenewal bool) (domain.PolicyContext, error) {
	if !domain.IsValidStage(stage) {
		return domain.PolicyContext{}, domain.ErrInvalidStage
	}

	p.mu.RLock()
	sp := p.stages[string(stage)]
	if categoryID != "" {
		if override, ok := p.categories[categoryID]; ok {
			if catStage, ok := override[string(stage)]; ok {
				sp = mergeStage(sp, catStage)
			}
		}
	}
	p.mu.RUnlock()

	ctx := domain.PolicyContext{
		Stage:                 stage,
		MandatoryChecks:       sp.MandatoryChecks,
		HumanRequiredFor:      sp.HumanRequiredFor,
		AllowedDecisionValues: sp.AllowedStrategies,
	}
	for _, next := range sp.AllowedNextStages {
		ctx.AllowedNextStages = append(ctx.AllowedNextStages, domain.Stage(next))
	}

	if isRenewal && stage == domain.StageStrategy && len(sp.AllowedStrategies) == 0 {
		allowed := append([]string(nil), renewalDefaultStrategies...)
		if sp.AllowRFxRenewals {
			allowed = append(allowed, domain.StrategyRFx)
		}
		ctx.AllowedDecisionValues = allowed
	}

	return ctx, nil
}
