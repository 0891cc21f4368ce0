package loader

import (
	"fmt"
	"strings"

	"github.com/nathoo/cgmlsim/engine/effects"
	"github.com/nathoo/cgmlsim/engine/rules"
	"github.com/nathoo/cgmlsim/engine/setup"
	"github.com/nathoo/cgmlsim/types"
)

// ValidationError collects all validation errors and warnings.
type ValidationError struct {
	Errors   []string
	Warnings []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed with %d error(s):\n  %s",
		len(e.Errors), strings.Join(e.Errors, "\n  "))
}

// Err returns e when it holds errors, otherwise nil.
func (e *ValidationError) Err() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) errorf(format string, args ...any) {
	e.Errors = append(e.Errors, fmt.Sprintf(format, args...))
}

func (e *ValidationError) warnf(format string, args ...any) {
	e.Warnings = append(e.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks a compiled definition for referential integrity. The
// returned report is never nil.
func Validate(def *types.Definition) *ValidationError {
	ve := &ValidationError{}

	if def.Meta.Name == "" {
		ve.errorf("meta.name is required")
	}
	pb := def.Meta.Players
	if pb.Min < 0 || pb.Max < 0 {
		ve.errorf("player bounds must not be negative (min %d, max %d)", pb.Min, pb.Max)
	}
	if pb.Max > 0 && pb.Min > pb.Max {
		ve.errorf("players.min %d exceeds players.max %d", pb.Min, pb.Max)
	}

	validateComponents(def, ve)
	validateFlow(def, ve)
	validateRules(def, ve)
	validateSetup(def, ve)
	return ve
}

func validateComponents(def *types.Definition, ve *ValidationError) {
	c := def.Components

	deckTypes := map[string]bool{}
	for _, dt := range c.DeckTypes {
		if deckTypes[dt.Name] {
			ve.errorf("duplicate deck type %q", dt.Name)
		}
		deckTypes[dt.Name] = true
		for i, ce := range dt.Composition {
			switch ce.Type {
			case "template", "":
				if ce.Template != "standard_suits" {
					ve.errorf("deck type %q composition %d: unknown template %q", dt.Name, i, ce.Template)
				} else if len(ce.Values) == 0 {
					ve.warnf("deck type %q composition %d has no values", dt.Name, i)
				}
			case "cards":
				if len(ce.Cards) == 0 {
					ve.warnf("deck type %q composition %d lists no cards", dt.Name, i)
				}
			default:
				ve.errorf("deck type %q composition %d: unknown entry type %q", dt.Name, i, ce.Type)
			}
		}
		seen := map[string]bool{}
		for _, r := range dt.RankHierarchy {
			if seen[r] {
				ve.warnf("deck type %q ranks %q twice; the lower position is ignored", dt.Name, r)
			}
			seen[r] = true
		}
	}

	decks := map[string]bool{}
	for _, d := range c.Decks {
		if decks[d.Name] {
			ve.errorf("duplicate deck %q", d.Name)
		}
		decks[d.Name] = true
		if !deckTypes[d.Type] {
			ve.errorf("deck %q has undefined type %q", d.Name, d.Type)
		}
	}

	shared := map[string]bool{}
	perPlayer := map[string]bool{}
	claimed := map[string]bool{}
	for _, z := range c.Zones {
		set := shared
		if z.PerPlayer {
			set = perPlayer
		}
		if z.Name == "" {
			ve.errorf("zone without a name")
		} else if set[z.Name] {
			ve.errorf("duplicate zone %q", z.Name)
		}
		set[z.Name] = true
		if z.OfDeck != "" {
			if !decks[z.OfDeck] {
				ve.errorf("zone %q holds undefined deck %q", z.Name, z.OfDeck)
			}
			claimed[z.OfDeck] = true
		}
	}
	for _, d := range c.Decks {
		if !claimed[d.Name] {
			ve.warnf("deck %q is not assigned to any zone", d.Name)
		}
	}

	vars := map[string]bool{}
	for _, v := range c.Variables {
		key := fmt.Sprintf("%t/%s", v.PerPlayer, v.Name)
		if vars[key] {
			ve.errorf("duplicate variable %q", v.Name)
		}
		vars[key] = true
	}
}

func validateFlow(def *types.Definition, ve *ValidationError) {
	flow := def.Flow
	end := flow.EndState
	if end == "" {
		end = types.DefaultEndState
	}
	known := func(name string) bool {
		_, ok := flow.States[name]
		return ok || name == end
	}

	if flow.InitialState == "" {
		ve.errorf("flow.initial_state is required")
	} else if !known(flow.InitialState) {
		ve.errorf("initial state %q is not declared", flow.InitialState)
	}
	for _, name := range sortedKeys(flow.States) {
		if name != end && len(flow.States[name].Phases) == 0 {
			ve.warnf("state %q has no phases; no rule can fire in it", name)
		}
	}
	for i, t := range flow.Transitions {
		if !known(t.From) {
			ve.errorf("transition %d leaves undeclared state %q", i, t.From)
		}
		if !known(t.To) {
			ve.errorf("transition %d enters undeclared state %q", i, t.To)
		}
	}
}

func validateRules(def *types.Definition, ve *ValidationError) {
	phases := map[string]bool{}
	for _, st := range def.Flow.States {
		for _, p := range st.Phases {
			phases[p] = true
		}
	}
	registry := effects.DefaultRegistry()

	ids := map[string]bool{}
	for _, rule := range def.Rules {
		if ids[rule.ID] {
			ve.errorf("duplicate rule ID %q", rule.ID)
		}
		ids[rule.ID] = true

		phase, ok := rules.TriggerPhase(rule.Trigger)
		switch {
		case !ok:
			ve.warnf("rule %q trigger %q is not a phase trigger and never fires", rule.ID, rule.Trigger)
		case !phases[phase]:
			ve.warnf("rule %q triggers on phase %q, which no state declares", rule.ID, phase)
		}

		if len(rule.Effect) == 0 {
			ve.warnf("rule %q has no effects", rule.ID)
		}
		for i, a := range rule.Effect {
			if _, ok := registry[a.Action]; !ok {
				ve.warnf("rule %q effect %d uses unregistered action %q", rule.ID, i, a.Action)
			}
			if a.Action == effects.ActionSetGameState {
				if name, ok := a.Params["state"].(string); ok {
					if _, declared := def.Flow.States[name]; !declared && name != endState(def) {
						ve.errorf("rule %q sets undeclared state %q", rule.ID, name)
					}
				}
			}
		}
	}
}

func validateSetup(def *types.Definition, ve *ValidationError) {
	for i, a := range def.Setup {
		if !setup.Supported(a.Action) {
			ve.errorf("setup %d: unknown setup action %q", i, a.Action)
		}
	}
}

func endState(def *types.Definition) string {
	if def.Flow.EndState != "" {
		return def.Flow.EndState
	}
	return types.DefaultEndState
}
