// Package batch plays many independent games of one definition
// concurrently and aggregates their outcomes.
package batch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nathoo/cgmlsim/engine"
	"github.com/nathoo/cgmlsim/engine/events"
	"github.com/nathoo/cgmlsim/engine/setup"
	"github.com/nathoo/cgmlsim/engine/state"
	"github.com/nathoo/cgmlsim/types"
)

// Options configures a batch.
type Options struct {
	Games         int
	Workers       int
	Players       int   // 0 means the definition's maximum
	Seed          int64 // master seed; per-game seeds derive from it
	MaxIterations int   // 0 means engine.DefaultMaxIterations
	Log           *zap.Logger
	// Progress, when set, is called after each finished game with the
	// number of games done so far. It may be called from several
	// goroutines.
	Progress func(done int)
}

// Result is the outcome of one game.
type Result struct {
	Index       int            `json:"index"`
	GameID      string         `json:"game_id"`
	Seed        int64          `json:"seed"`
	Outcome     engine.Outcome `json:"outcome"`
	RuleCounts  map[string]int `json:"rule_counts,omitempty"`
	CardsBefore int            `json:"cards_before"`
	CardsAfter  int            `json:"cards_after"`
	Err         string         `json:"error,omitempty"`
}

// Summary describes one integer measure over the finished games.
type Summary struct {
	Min  int     `json:"min"`
	Max  int     `json:"max"`
	Mean float64 `json:"mean"`
}

// Stats aggregates results.
type Stats struct {
	Games       int                   `json:"games"`
	Failed      int                   `json:"failed"`
	Reasons     map[engine.Reason]int `json:"reasons"`
	FinalStates map[string]int        `json:"final_states"`
	RuleCounts  map[string]int        `json:"rule_counts"`
	Iterations  Summary               `json:"iterations"`
	Actions     Summary               `json:"actions"`
	Turns       Summary               `json:"turns"`
}

// Report is a finished batch.
type Report struct {
	RunID      string   `json:"run_id"`
	Game       string   `json:"game"`
	MasterSeed int64    `json:"master_seed"`
	Stats      Stats    `json:"stats"`
	Results    []Result `json:"results"`
}

// Run plays opts.Games games of def. Each game owns its state and RNG, so
// results depend only on the master seed. A failing game is recorded in
// its Result; Run itself fails only on bad options or cancellation.
func Run(ctx context.Context, def *types.Definition, opts Options) (*Report, error) {
	if def == nil {
		return nil, errors.New("batch needs a definition")
	}
	if opts.Games < 1 {
		return nil, fmt.Errorf("games must be at least 1, got %d", opts.Games)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.MaxIterations == 0 {
		opts.MaxIterations = engine.DefaultMaxIterations
	}

	report := &Report{
		RunID:      uuid.NewString(),
		Game:       def.Meta.Name,
		MasterSeed: opts.Seed,
		Results:    make([]Result, opts.Games),
	}
	log := opts.Log.With(zap.String("run_id", report.RunID))

	// Seeds are drawn up front so scheduling order cannot change them.
	master := engine.NewRNG(opts.Seed)
	seeds := make([]int64, opts.Games)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i := 0; i < opts.Games; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			report.Results[i] = play(def, i, seeds[i], opts, log)
			n := done.Add(1)
			if opts.Progress != nil {
				opts.Progress(int(n))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch %s: %w", report.RunID, err)
	}

	report.Stats = Aggregate(report.Results)
	log.Info("batch finished",
		zap.String("game", def.Meta.Name),
		zap.Int("games", report.Stats.Games),
		zap.Int("failed", report.Stats.Failed))
	return report, nil
}

// play runs one game to completion.
func play(def *types.Definition, index int, seed int64, opts Options, log *zap.Logger) Result {
	res := Result{Index: index, GameID: uuid.NewString(), Seed: seed}
	log = log.With(zap.String("game_id", res.GameID), zap.Int64("seed", seed))

	fail := func(err error) Result {
		res.Err = err.Error()
		log.Warn("game failed", zap.Error(err))
		return res
	}

	gs, err := state.Build(def, opts.Players, log)
	if err != nil {
		return fail(err)
	}
	res.CardsBefore = gs.CardCount()

	rng := engine.NewRNG(seed)
	if err := setup.Run(gs, rng, log); err != nil {
		return fail(err)
	}

	bus := &events.Bus{}
	counts := map[string]int{}
	bus.Subscribe(func(ev types.Event) {
		if id, ok := ev.Data["rule"].(string); ok {
			counts[id]++
		}
	}, events.ActionExecuted)

	sim, err := engine.New(gs,
		engine.WithRNG(rng),
		engine.WithLogger(log),
		engine.WithMaxIterations(opts.MaxIterations),
		engine.WithEvents(bus))
	if err != nil {
		return fail(err)
	}
	out, err := sim.Run()
	if err != nil {
		return fail(err)
	}
	res.Outcome = out
	res.RuleCounts = counts
	res.CardsAfter = gs.CardCount()
	return res
}

// Aggregate summarises results. Failed games count only toward Failed.
func Aggregate(results []Result) Stats {
	st := Stats{
		Games:       len(results),
		Reasons:     map[engine.Reason]int{},
		FinalStates: map[string]int{},
		RuleCounts:  map[string]int{},
	}
	var iters, actions, turns []int
	for _, r := range results {
		if r.Err != "" {
			st.Failed++
			continue
		}
		st.Reasons[r.Outcome.Reason]++
		st.FinalStates[r.Outcome.FinalState]++
		for id, n := range r.RuleCounts {
			st.RuleCounts[id] += n
		}
		iters = append(iters, r.Outcome.Iterations)
		actions = append(actions, r.Outcome.Actions)
		turns = append(turns, r.Outcome.Turns)
	}
	st.Iterations = summarize(iters)
	st.Actions = summarize(actions)
	st.Turns = summarize(turns)
	return st
}

func summarize(xs []int) Summary {
	if len(xs) == 0 {
		return Summary{}
	}
	s := Summary{Min: math.MaxInt, Max: math.MinInt}
	total := 0
	for _, x := range xs {
		s.Min = min(s.Min, x)
		s.Max = max(s.Max, x)
		total += x
	}
	s.Mean = float64(total) / float64(len(xs))
	return s
}

// SortedReasons returns the reasons seen, most frequent first.
func (s Stats) SortedReasons() []engine.Reason {
	out := make([]engine.Reason, 0, len(s.Reasons))
	for r := range s.Reasons {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if s.Reasons[out[i]] != s.Reasons[out[j]] {
			return s.Reasons[out[i]] > s.Reasons[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}
