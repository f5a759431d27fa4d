package main

import (
	"fmt"

	"github.com/aretw0/osdl/internal/cli"
	"github.com/spf13/cobra"
)

var scaffoldCmd = &cobra.Command{
	Use:   "scaffold [dir]",
	Short: "Write sample pages, fixtures and actions to start from",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")

		written, err := cli.Scaffold(dir, force)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(written) == 0 {
			fmt.Fprintln(out, "Nothing to write; use --force to overwrite.")
			return nil
		}
		for _, path := range written {
			fmt.Fprintln(out, "created "+path)
		}
		fmt.Fprintln(out, "\nTry: osdl render catalog --fixtures fixtures.json -o tui")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scaffoldCmd)
	scaffoldCmd.Flags().Bool("force", false, "Overwrite existing files")
}
