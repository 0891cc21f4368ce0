package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/nathoo/cgmlsim/batch"
)

var batchCmd = &cobra.Command{
	Use:   "batch <definition>",
	Short: "Play many random games and summarise the outcomes",
	Long: `Plays batch.games independent games on batch.workers goroutines. Each
game gets its own seed derived from the master seed, so a batch is
reproducible with --seed regardless of the worker count.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		quiet, _ := cmd.Flags().GetBool("quiet")

		def, err := loadDefinition(args[0])
		if err != nil {
			return err
		}

		opts := batch.Options{
			Games:         cfg.Batch.Games,
			Workers:       cfg.Batch.Workers,
			Players:       cfg.Simulation.Players,
			Seed:          cfg.Simulation.Seed,
			MaxIterations: cfg.Simulation.MaxIterations,
			Log:           logger,
		}
		if !quiet && !asJSON {
			bar := progressbar.Default(int64(opts.Games), "Simulating")
			opts.Progress = func(int) { _ = bar.Add(1) }
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		report, err := batch.Run(ctx, def, opts)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		printReport(out, report)
		return nil
	},
}

func init() {
	f := batchCmd.Flags()
	f.Int("games", 0, "number of games to play")
	f.Int("workers", 0, "concurrent games")
	f.Bool("json", false, "print the full report as JSON")
	f.Bool("quiet", false, "hide the progress bar")
	cobra.CheckErr(v.BindPFlag("batch.games", f.Lookup("games")))
	cobra.CheckErr(v.BindPFlag("batch.workers", f.Lookup("workers")))
	rootCmd.AddCommand(batchCmd)
}

func printReport(w io.Writer, r *batch.Report) {
	st := r.Stats
	fmt.Fprintf(w, "\n%s: %d games (run %s, master seed %d)\n", r.Game, st.Games, r.RunID, r.MasterSeed)
	if st.Failed > 0 {
		fmt.Fprintf(w, "  failed: %d\n", st.Failed)
		for _, res := range r.Results {
			if res.Err != "" {
				fmt.Fprintf(w, "    game %d (seed %d): %s\n", res.Index, res.Seed, res.Err)
				break
			}
		}
	}

	fmt.Fprintln(w, "  outcomes:")
	for _, reason := range st.SortedReasons() {
		fmt.Fprintf(w, "    %-16s %d\n", reason, st.Reasons[reason])
	}
	fmt.Fprintln(w, "  final states:")
	for _, name := range sortedKeys(st.FinalStates) {
		fmt.Fprintf(w, "    %-16s %d\n", name, st.FinalStates[name])
	}
	fmt.Fprintf(w, "  iterations: min %d  max %d  mean %.1f\n", st.Iterations.Min, st.Iterations.Max, st.Iterations.Mean)
	fmt.Fprintf(w, "  actions:    min %d  max %d  mean %.1f\n", st.Actions.Min, st.Actions.Max, st.Actions.Mean)
	fmt.Fprintf(w, "  turns:      min %d  max %d  mean %.1f\n", st.Turns.Min, st.Turns.Max, st.Turns.Mean)
	if len(st.RuleCounts) > 0 {
		fmt.Fprintln(w, "  rules fired:")
		for _, id := range sortedKeys(st.RuleCounts) {
			fmt.Fprintf(w, "    %-16s %d\n", id, st.RuleCounts[id])
		}
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
