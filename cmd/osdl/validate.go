package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/aretw0/osdl/internal/cli"
	"github.com/aretw0/osdl/pkg/adapters/file"
	loamadapter "github.com/aretw0/osdl/pkg/adapters/loam"
	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/ports"
	"github.com/aretw0/osdl/pkg/schema"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [dir | page-file]",
	Short: "Check pages for structural and expression errors",
	Long: `Validates every page served from the given directory or file (default
--pages, or --loam when set) and reports every problem found.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loader, err := validationLoader(args)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		ids, err := loader.ListPages(ctx)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return errors.New("no pages found")
		}

		out := cmd.OutOrStdout()
		failed := 0
		for _, id := range ids {
			page, err := loader.GetPage(ctx, id)
			if err == nil {
				err = schema.ValidatePage(page, schema.WithSourceTypes(domain.SourceMockData, domain.SourceRQL, domain.SourceSQL))
			}
			if err == nil {
				fmt.Fprintf(out, "✅ %s\n", id)
				continue
			}
			failed++
			fmt.Fprintf(out, "❌ %s\n", id)
			if errs := schema.ValidationErrors(err); len(errs) > 0 {
				for _, e := range errs {
					fmt.Fprintf(out, "   - %v\n", e)
				}
			} else {
				fmt.Fprintf(out, "   - %v\n", err)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d pages invalid", failed, len(ids))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validationLoader(args []string) (ports.PageLoader, error) {
	if len(args) > 0 {
		if _, err := os.Stat(args[0]); err != nil {
			return nil, err
		}
		l, _, err := cli.LoaderFor(args[0])
		return l, err
	}
	if cfg.LoamRepo != "" {
		return loamadapter.Open(cfg.LoamRepo)
	}
	return file.NewLoader(cfg.PagesDir)
}
