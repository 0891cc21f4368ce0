package rules

import (
	"fmt"

	"github.com/nathoo/cgmlsim/engine/state"
	"github.com/nathoo/cgmlsim/types"
)

// LegalAction is a rule that may be played now, with its effect list.
type LegalAction struct {
	RuleID string
	Effect []types.EffectAction
}

// Collect returns, in declaration order, every rule triggered by phase whose
// condition holds. A failing condition aborts collection; a malformed rule
// must not be silently skipped.
func (e *Evaluator) Collect(defs []types.RuleDef, phase string,
	gs *state.GameState, bindings map[string]any) ([]LegalAction, error) {

	var legal []LegalAction
	for _, rule := range defs {
		if !MatchesPhase(rule.Trigger, phase) {
			continue
		}
		ok, err := e.Condition(rule.Condition, gs, bindings)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.ID, err)
		}
		if !ok {
			continue
		}
		legal = append(legal, LegalAction{RuleID: rule.ID, Effect: rule.Effect})
	}
	return legal, nil
}
