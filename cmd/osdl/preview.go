package main

import (
	"fmt"
	"os"

	"github.com/aretw0/osdl"
	"github.com/aretw0/osdl/internal/cli"
	"github.com/aretw0/osdl/internal/presentation/tui"
	"github.com/aretw0/osdl/pkg/domain"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var previewCmd = &cobra.Command{
	Use:   "preview <page-id | page-file>",
	Short: "Interactively preview a page in the terminal",
	Long: `Opens a full screen view of the rendered page. Tab cycles through the
node events, enter fires the selected one and the view re-renders as state
and data change. With --session the state is persisted on exit.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pageID := args[0]
		sessionID, _ := cmd.Flags().GetString("session")

		var appOpts []cli.AppOption
		if _, err := os.Stat(pageID); err == nil {
			loader, id, err := cli.LoaderFor(pageID)
			if err != nil {
				return err
			}
			if id == "" {
				return fmt.Errorf("%s is a directory; pass it with --pages and preview a page id", pageID)
			}
			pageID = id
			appOpts = append(appOpts, cli.WithLoader(loader))
		}

		var ambient *domain.Ambient
		if raw, _ := cmd.Flags().GetString("ambient"); raw != "" {
			ambient = &domain.Ambient{}
			if err := json.Unmarshal([]byte(raw), ambient); err != nil {
				return fmt.Errorf("error parsing --ambient JSON: %w", err)
			}
		}

		app, err := newApp(appOpts...)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		var e *osdl.Engine
		if sessionID != "" {
			if e, err = app.Sessions.Open(ctx, sessionID, pageID); err != nil {
				return err
			}
		} else {
			if e, err = app.NewEngine(ctx, pageID); err != nil {
				return err
			}
			defer e.Close()
		}
		if ambient != nil {
			e.SetAmbient(*ambient)
		}
		return tui.RunPreview(ctx, e)
	},
}

func init() {
	rootCmd.AddCommand(previewCmd)
	previewCmd.Flags().String("session", "", "Preview inside a persisted session")
	previewCmd.Flags().String("ambient", "", "JSON object with page, viewport and user facts")
}
