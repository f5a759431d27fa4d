package main

import (
	"fmt"

	"github.com/aretw0/osdl"
	"github.com/aretw0/osdl/pkg/expression"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var evalCmd = &cobra.Command{
	Use:   "eval <expression>",
	Short: "Evaluate an expression against JSON variables",
	Example: `  osdl eval "uppercase(user.name)" --vars '{"user": {"name": "ada"}}'
  osdl eval "toFixed(price * 1.2, 2)" --vars '{"price": 10}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vars := map[string]any{}
		if raw, _ := cmd.Flags().GetString("vars"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &vars); err != nil {
				return fmt.Errorf("error parsing --vars JSON: %w", err)
			}
		}

		v, err := osdl.Evaluate(args[0], vars)
		if err != nil {
			return err
		}
		if expression.IsUndefined(v) {
			fmt.Fprintln(cmd.OutOrStdout(), "undefined")
			return nil
		}
		out, err := json.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(evalCmd)
	evalCmd.Flags().String("vars", "", "JSON object of root variables")
}
