// Package engine provides the Simulator: the flow controller that wires the
// evaluator, the effect executor and the state model into a turn loop.
package engine

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nathoo/cgmlsim/engine/effects"
	"github.com/nathoo/cgmlsim/engine/events"
	"github.com/nathoo/cgmlsim/engine/rules"
	"github.com/nathoo/cgmlsim/engine/state"
	"github.com/nathoo/cgmlsim/types"
)

// DefaultMaxIterations bounds Run when no limit is configured.
const DefaultMaxIterations = 10000

// ErrBadChoice is returned when a chooser picks an index outside the legal
// actions.
var ErrBadChoice = errors.New("choice out of range")

// Reason explains why a run ended.
type Reason string

const (
	ReasonEndState       Reason = "end_state"
	ReasonNoProgress     Reason = "no_progress"
	ReasonIterationLimit Reason = "iteration_limit"
)

// Outcome summarises a finished run.
type Outcome struct {
	Reason     Reason `json:"reason"`
	FinalState string `json:"final_state"`
	Iterations int    `json:"iterations"`
	Actions    int    `json:"actions"`
	Turns      int    `json:"turns"`
}

// Chooser picks one of the legal actions by index.
type Chooser func(player int, legal []rules.LegalAction) (int, error)

// RandomChooser picks uniformly with r.
func RandomChooser(r state.Rand) Chooser {
	return func(_ int, legal []rules.LegalAction) (int, error) {
		return r.Intn(len(legal)), nil
	}
}

// Simulator drives one game. It owns its GameState for the length of the
// run; callers must not mutate the state between steps.
type Simulator struct {
	gs   *state.GameState
	def  *types.Definition
	eval *rules.Evaluator
	exec *effects.Executor
	rng  state.Rand
	log  *zap.Logger
	bus  *events.Bus

	registry      effects.Registry
	maxIterations int

	phaseIndex int
	iterations int
	actions    int
	turns      int
	idle       int // phase advances since the last executed action or state change

	outcome *Outcome
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithRNG sets the random source used for action selection and shuffles.
func WithRNG(r state.Rand) Option { return func(s *Simulator) { s.rng = r } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Simulator) { s.log = l } }

// WithMaxIterations caps Run. Zero or less means unlimited.
func WithMaxIterations(n int) Option { return func(s *Simulator) { s.maxIterations = n } }

// WithRegistry replaces the effect registry.
func WithRegistry(r effects.Registry) Option { return func(s *Simulator) { s.registry = r } }

// WithEvents publishes flow events on bus.
func WithEvents(bus *events.Bus) Option { return func(s *Simulator) { s.bus = bus } }

// New creates a simulator over a built (and usually set up) game state.
func New(gs *state.GameState, opts ...Option) (*Simulator, error) {
	if gs == nil || gs.Def == nil {
		return nil, errors.New("simulator needs a game state with a definition")
	}
	s := &Simulator{
		gs:            gs,
		def:           gs.Def,
		maxIterations: DefaultMaxIterations,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.rng == nil {
		s.rng = NewClockRNG()
	}
	if len(gs.Players) == 0 {
		return nil, errors.New("simulator needs at least one player")
	}
	if !gs.HasState(gs.CurrentState) {
		return nil, fmt.Errorf("current state %q is not declared in the flow", gs.CurrentState)
	}
	s.eval = rules.NewEvaluator(s.def)
	s.exec = effects.NewExecutor(s.registry, s.log)
	s.syncPhase()
	return s, nil
}

// State returns the game state being driven.
func (s *Simulator) State() *state.GameState { return s.gs }

// Evaluator returns the evaluator used for rule conditions.
func (s *Simulator) Evaluator() *rules.Evaluator { return s.eval }

// Phase returns the current phase name, or "" when the state has none.
func (s *Simulator) Phase() string { return s.gs.CurrentPhase }

// PhaseIndex returns the index of the current phase.
func (s *Simulator) PhaseIndex() int { return s.phaseIndex }

// RNG returns the random source driving shuffles and random choice.
func (s *Simulator) RNG() state.Rand { return s.rng }

// Iterations returns how many loop iterations have run.
func (s *Simulator) Iterations() int { return s.iterations }

// Done reports whether the run has ended.
func (s *Simulator) Done() bool { return s.outcome != nil }

// Outcome returns the result once Done, or nil.
func (s *Simulator) Outcome() *Outcome { return s.outcome }

// LegalActions returns the rules playable in the current phase by
// playerID. Conditions see the seat through ref "player" and the phase
// through ref "phase".
func (s *Simulator) LegalActions(playerID int) ([]rules.LegalAction, error) {
	if s.gs.Player(playerID) == nil {
		return nil, fmt.Errorf("no player %d", playerID)
	}
	return s.eval.Collect(s.def.Rules, s.gs.CurrentPhase, s.gs, s.bindings(playerID))
}

// Run steps with random choice until the game ends.
func (s *Simulator) Run() (Outcome, error) {
	for {
		done, err := s.Step()
		if err != nil {
			return Outcome{}, err
		}
		if done {
			return *s.outcome, nil
		}
	}
}

// Step runs one iteration, choosing uniformly at random among legal
// actions. It reports whether the game has ended.
func (s *Simulator) Step() (bool, error) {
	return s.StepWith(RandomChooser(s.rng))
}

// StepWith runs one iteration using choose to pick among legal actions.
func (s *Simulator) StepWith(choose Chooser) (bool, error) {
	if s.outcome != nil {
		return true, nil
	}

	// 1. Terminal state.
	if s.gs.IsTerminal() {
		s.finish(ReasonEndState)
		return true, nil
	}
	if s.maxIterations > 0 && s.iterations >= s.maxIterations {
		s.finish(ReasonIterationLimit)
		return true, nil
	}
	s.iterations++

	// 2. Current phase.
	phases := s.phases()
	s.syncPhase()
	player := s.gs.CurrentPlayer

	// 3. Legal actions.
	legal, err := s.LegalActions(player)
	if err != nil {
		return false, err
	}

	if len(legal) > 0 {
		// 5. Choose and execute.
		idx, err := choose(player, legal)
		if err != nil {
			return false, err
		}
		if idx < 0 || idx >= len(legal) {
			return false, fmt.Errorf("%w: %d of %d", ErrBadChoice, idx, len(legal))
		}
		changed, err := s.execute(player, legal[idx])
		if err != nil {
			return false, err
		}
		// 6. Effect-driven state change wins over declared transitions.
		if changed {
			return false, nil
		}
	}

	// 7. Declared transitions.
	fired, err := s.applyTransitions()
	if err != nil {
		return false, err
	}
	if fired {
		return false, nil
	}

	// 4/8. Advance the phase, or stop when there is nothing to advance.
	if len(phases) == 0 {
		if len(legal) == 0 {
			s.finish(ReasonNoProgress)
			return true, nil
		}
		return false, nil
	}
	if len(legal) == 0 {
		s.idle++
		if s.idle >= len(phases)*len(s.gs.Players) {
			s.finish(ReasonNoProgress)
			return true, nil
		}
	}
	s.advancePhase(phases)
	return false, nil
}

// execute runs one legal action and reports whether its effects changed
// the flow state.
func (s *Simulator) execute(player int, la rules.LegalAction) (bool, error) {
	before := s.gs.CurrentState
	ctx := &effects.Context{
		Player:   player,
		Bindings: s.bindings(player),
		Eval:     s.eval,
		RNG:      s.rng,
		Log:      s.log,
	}
	if err := s.exec.Execute(la.Effect, s.gs, ctx); err != nil {
		return false, fmt.Errorf("rule %q: %w", la.RuleID, err)
	}
	s.actions++
	s.idle = 0
	s.log.Debug("action executed",
		zap.String("rule", la.RuleID),
		zap.Int("player", player),
		zap.String("phase", s.gs.CurrentPhase))
	s.publish(events.ActionExecuted, map[string]any{
		"rule":    la.RuleID,
		"player":  player,
		"phase":   s.gs.CurrentPhase,
		"effects": ctx.Events,
	})

	if s.gs.CurrentState == before {
		return false, nil
	}
	s.phaseIndex = 0
	s.idle = 0
	s.syncPhase()
	s.publish(events.StateChanged, map[string]any{"from": before, "to": s.gs.CurrentState})
	return true, nil
}

// applyTransitions takes the first declared transition out of the current
// state whose condition holds.
func (s *Simulator) applyTransitions() (bool, error) {
	from := s.gs.CurrentState
	for i, t := range s.def.Flow.Transitions {
		if t.From != from {
			continue
		}
		ok, err := s.eval.Condition(t.Condition, s.gs, s.bindings(s.gs.CurrentPlayer))
		if err != nil {
			return false, fmt.Errorf("transition %d (%s -> %s): %w", i, t.From, t.To, err)
		}
		if !ok {
			continue
		}
		if !s.gs.HasState(t.To) {
			return false, fmt.Errorf("transition %d targets undeclared state %q", i, t.To)
		}
		s.gs.CurrentState = t.To
		s.phaseIndex = 0
		s.idle = 0
		s.syncPhase()
		s.log.Debug("transition", zap.String("from", from), zap.String("to", t.To))
		s.publish(events.Transition, map[string]any{"from": from, "to": t.To})
		return true, nil
	}
	return false, nil
}

// advancePhase moves to the next phase. Wrapping past the last phase ends
// the current player's turn.
func (s *Simulator) advancePhase(phases []string) {
	s.phaseIndex++
	if s.phaseIndex >= len(phases) {
		s.phaseIndex = 0
		prev := s.gs.CurrentPlayer
		s.gs.CurrentPlayer = (prev + 1) % len(s.gs.Players)
		s.turns++
		s.publish(events.TurnEnded, map[string]any{"player": prev, "next": s.gs.CurrentPlayer})
	}
	s.syncPhase()
	s.publish(events.PhaseAdvanced, map[string]any{
		"phase":  s.gs.CurrentPhase,
		"player": s.gs.CurrentPlayer,
	})
}

func (s *Simulator) phases() []string {
	return s.def.Flow.States[s.gs.CurrentState].Phases
}

// syncPhase mirrors the phase index onto the game state so conditions can
// read current_phase.
func (s *Simulator) syncPhase() {
	phases := s.phases()
	if s.phaseIndex < 0 || s.phaseIndex >= len(phases) {
		s.gs.CurrentPhase = ""
		return
	}
	s.gs.CurrentPhase = phases[s.phaseIndex]
}

func (s *Simulator) bindings(player int) map[string]any {
	return map[string]any{
		"player": player,
		"phase":  s.gs.CurrentPhase,
	}
}

func (s *Simulator) finish(reason Reason) {
	s.outcome = &Outcome{
		Reason:     reason,
		FinalState: s.gs.CurrentState,
		Iterations: s.iterations,
		Actions:    s.actions,
		Turns:      s.turns,
	}
	s.log.Info("game finished",
		zap.String("reason", string(reason)),
		zap.String("state", s.gs.CurrentState),
		zap.Int("iterations", s.iterations),
		zap.Int("actions", s.actions))
	s.publish(events.GameOver, map[string]any{
		"reason":     string(reason),
		"state":      s.gs.CurrentState,
		"iterations": s.iterations,
	})
}

func (s *Simulator) publish(typ string, data map[string]any) {
	s.bus.Publish(types.Event{Type: typ, Data: data})
}
