package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nathoo/cgmlsim/loader"
)

var validateCmd = &cobra.Command{
	Use:   "validate <definition>",
	Short: "Check a definition and list its errors and warnings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := loader.Compile(args[0])
		if err != nil {
			return err
		}
		ve := loader.Validate(def)

		out := cmd.OutOrStdout()
		for _, e := range ve.Errors {
			fmt.Fprintf(out, "error:   %s\n", e)
		}
		for _, w := range ve.Warnings {
			fmt.Fprintf(out, "warning: %s\n", w)
		}
		if err := ve.Err(); err != nil {
			return fmt.Errorf("%s: %d error(s), %d warning(s)", args[0], len(ve.Errors), len(ve.Warnings))
		}
		fmt.Fprintf(out, "%s: %s %s is valid (%d rules, %d states, %d warning(s))\n",
			args[0], def.Meta.Name, def.Meta.Version, len(def.Rules), len(def.Flow.States), len(ve.Warnings))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
