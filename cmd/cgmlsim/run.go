package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nathoo/cgmlsim/cli"
	"github.com/nathoo/cgmlsim/engine"
	"github.com/nathoo/cgmlsim/engine/snapshot"
)

var runCmd = &cobra.Command{
	Use:   "run <definition>",
	Short: "Play one game with random choices",
	Long: `Loads a definition, runs setup and plays a single game to the end with
uniformly random choices. --trace prints one line per event; --json prints
the final table as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		trace, _ := cmd.Flags().GetBool("trace")
		asJSON, _ := cmd.Flags().GetBool("json")

		def, err := loadDefinition(args[0])
		if err != nil {
			return err
		}
		g, err := newGame(def)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		var outcome engine.Outcome
		if trace {
			outcome, err = cli.Watch(g.sim, g.bus, out)
		} else {
			outcome, err = g.sim.Run()
		}
		if err != nil {
			return err
		}

		if asJSON {
			snap := snapshot.Take(g.sim.State(), snapshot.Options{
				Viewer:      snapshot.Omniscient,
				RunID:       uuid.NewString(),
				Seed:        g.rng.Seed(),
				RNGPosition: g.rng.Position(),
				Outcome:     outcome,
			})
			data, err := snap.JSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}
		fmt.Fprintf(out, "%s: %s in state %s after %d iterations (%d actions, %d turns, seed %d)\n",
			def.Meta.Name, outcome.Reason, outcome.FinalState, outcome.Iterations, outcome.Actions, outcome.Turns, g.rng.Seed())
		return nil
	},
}

func init() {
	runCmd.Flags().Bool("trace", false, "print every simulator event")
	runCmd.Flags().Bool("json", false, "print the final table as JSON")
	rootCmd.AddCommand(runCmd)
}
