package rules

import "strings"

// PhaseTriggerPrefix prefixes every phase trigger ("on.phase.Draw").
const PhaseTriggerPrefix = "on.phase."

// PhaseTrigger returns the trigger string for a phase.
func PhaseTrigger(phase string) string {
	return PhaseTriggerPrefix + phase
}

// MatchesPhase reports whether trigger fires in phase. An empty phase
// matches nothing.
func MatchesPhase(trigger, phase string) bool {
	if phase == "" {
		return false
	}
	return trigger == PhaseTrigger(phase)
}

// TriggerPhase extracts the phase name from a phase trigger.
func TriggerPhase(trigger string) (string, bool) {
	if !strings.HasPrefix(trigger, PhaseTriggerPrefix) {
		return "", false
	}
	phase := strings.TrimPrefix(trigger, PhaseTriggerPrefix)
	return phase, phase != ""
}
