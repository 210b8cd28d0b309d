package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/diabetes-report-mcp-server/internal/corpus"
	"github.com/diabetes-report-mcp-server/internal/domain"
)

func newRulesCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "rules [metric value]",
		Short: "Print the rule table or classify one value",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("expected no arguments or <metric> <value>, got %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rt.config()
			if err != nil {
				return err
			}
			rules, err := loadRules(cfg.RAG.RulesFile)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				return printJSON(cmd, rules)
			}

			value, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return domain.NewValidationError("value", "must be a number", args[1])
			}
			cmd.Printf("%s %g: %s\n", args[0], value, rules.Status(args[0], value))
			return nil
		},
	}
}

func loadRules(path string) (domain.RuleTable, error) {
	if path == "" {
		return corpus.DefaultRules()
	}
	return corpus.LoadRules(path)
}
