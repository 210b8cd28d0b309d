package cli

import (
	"github.com/spf13/cobra"

	"github.com/diabetes-report-mcp-server/internal/app"
)

func newIndexCommand(rt *runtime) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "build-index",
		Short: "Build the guideline vector index",
		Long: `Loads the index pair from the configured directory, building it from the
corpus when it is missing or stale. With --force the index is always rebuilt,
which also replaces an index built with a different embedding model.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var opts []app.Option
			if force {
				opts = append(opts, app.WithForceRebuild())
			}
			c, err := rt.components(cmd.Context(), opts...)
			if err != nil {
				return err
			}
			defer c.Close()

			cmd.Printf("Index: %s\n", c.Config.RAG.IndexDir)
			cmd.Printf("  build id:  %s\n", c.Index.BuildID)
			cmd.Printf("  model:     %s\n", c.Index.Model)
			cmd.Printf("  vectors:   %d\n", c.Index.Size())
			cmd.Printf("  dimension: %d\n", c.Index.Dimension)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "rebuild even if an index exists")
	return cmd
}
