package main

import (
	"fmt"
	"os"

	"github.com/aretw0/osdl/internal/cli"
	"github.com/aretw0/osdl/pkg/domain"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var renderCmd = &cobra.Command{
	Use:   "render <page-id | page-file>",
	Short: "Render a page once and print the materialized tree",
	Long: `Evaluates a page and prints its tree. The argument is either a page id
served from --pages (or --loam) or the path to a single page file.

Output formats: json (default), tui, markdown and mermaid.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := cli.RenderOptions{PageID: args[0]}
		opts.SessionID, _ = cmd.Flags().GetString("session")
		opts.Settle, _ = cmd.Flags().GetBool("settle")
		opts.Format, _ = cmd.Flags().GetString("output")

		if raw, _ := cmd.Flags().GetString("ambient"); raw != "" {
			opts.Ambient = &domain.Ambient{}
			if err := json.Unmarshal([]byte(raw), opts.Ambient); err != nil {
				return fmt.Errorf("error parsing --ambient JSON: %w", err)
			}
		}
		if raw, _ := cmd.Flags().GetString("state"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &opts.States); err != nil {
				return fmt.Errorf("error parsing --state JSON: %w", err)
			}
		}

		var appOpts []cli.AppOption
		if _, err := os.Stat(args[0]); err == nil {
			loader, pageID, err := cli.LoaderFor(args[0])
			if err != nil {
				return err
			}
			if pageID == "" {
				return fmt.Errorf("%s is a directory; pass it with --pages and render a page id", args[0])
			}
			opts.PageID = pageID
			appOpts = append(appOpts, cli.WithLoader(loader))
		}

		if opts.Format == cli.FormatTUI {
			if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
				opts.Width = w
			}
		}

		app, err := newApp(appOpts...)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()
		return app.Render(ctx, opts, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringP("output", "o", cli.FormatJSON, "Output format: json, tui, markdown or mermaid")
	renderCmd.Flags().Bool("settle", true, "Wait for blocking data requirements before printing")
	renderCmd.Flags().String("session", "", "Render inside a persisted session")
	renderCmd.Flags().String("ambient", "", "JSON object with page, viewport and user facts")
	renderCmd.Flags().String("state", "", "JSON object of node id to local state overrides")
}
