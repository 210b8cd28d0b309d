package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/diabetes-report-mcp-server/internal/database"
	"github.com/diabetes-report-mcp-server/internal/logging"
)

func newMigrateCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Apply or roll back PostgreSQL schema migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rt.config()
			if err != nil {
				return err
			}

			runner, err := database.NewMigrationRunner(database.ConfigFromDomain(cfg.Database).URL(), logging.New(cfg.Logging))
			if err != nil {
				return err
			}
			defer runner.Close()

			switch args[0] {
			case "up":
				err = runner.Up(cmd.Context())
			case "down":
				err = runner.Down(cmd.Context())
			}
			if err != nil {
				return err
			}

			version, dirty, err := runner.Version()
			if err != nil {
				return fmt.Errorf("reading schema version: %w", err)
			}
			cmd.Printf("schema version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}
	return cmd
}
