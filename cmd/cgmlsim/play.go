package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nathoo/cgmlsim/cli"
	"github.com/nathoo/cgmlsim/tui"
)

var playCmd = &cobra.Command{
	Use:   "play <definition>",
	Short: "Play a game interactively",
	Long: `Plays a game where the human seats (simulation.human_seats, default
seat 0) choose among their legal actions and every other seat plays at
random. Uses the full-screen UI on a terminal and plain text otherwise.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plain, _ := cmd.Flags().GetBool("plain")
		trace, _ := cmd.Flags().GetBool("trace")
		script, _ := cmd.Flags().GetString("script")

		def, err := loadDefinition(args[0])
		if err != nil {
			return err
		}
		g, err := newGame(def)
		if err != nil {
			return err
		}
		humans := cfg.Simulation.HumanSeats

		// Script mode: read choices from a file, force plain, echo input.
		if script != "" {
			f, err := os.Open(script)
			if err != nil {
				return fmt.Errorf("opening script: %w", err)
			}
			defer f.Close()
			c := cli.New(g.sim, g.bus, humans...)
			c.In = f
			c.Out = cmd.OutOrStdout()
			c.EchoInput = true
			c.Trace = trace
			return c.Run()
		}

		if plain || !isTerminal() {
			c := cli.New(g.sim, g.bus, humans...)
			c.Out = cmd.OutOrStdout()
			c.Trace = trace
			return c.Run()
		}
		return tui.Run(g.sim, g.bus, humans...)
	},
}

func init() {
	playCmd.Flags().Bool("plain", false, "use the plain line-based interface")
	playCmd.Flags().Bool("trace", false, "print every simulator event (plain mode)")
	playCmd.Flags().String("script", "", "read choices from a file (implies --plain)")
	rootCmd.AddCommand(playCmd)
}

// isTerminal returns true if stdout is a terminal (not piped/redirected).
func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
