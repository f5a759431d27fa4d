package main

import (
	"fmt"

	"github.com/aretw0/osdl/internal/presentation/graph"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph <page-id>",
	Short: "Export the page structure as a Mermaid diagram",
	Long: `Prints a Mermaid flowchart (graph TD) of a page: node hierarchy, data
sources and cross-node actions. With --overlay the page is rendered first
and mounted or pending nodes are highlighted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		overlay, _ := cmd.Flags().GetBool("overlay")

		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		page, err := app.Loader.GetPage(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		var o *graph.Overlay
		if overlay {
			e, err := app.NewEngine(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer e.Close()
			tree, err := e.Render(cmd.Context())
			if err != nil {
				return err
			}
			o = graph.OverlayFromTree(tree)
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(page, o))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().Bool("overlay", false, "Highlight mounted and pending nodes of a first render")
}
