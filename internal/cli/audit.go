package cli

import (
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newAuditCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the generation audit log",
	}

	var out string
	export := &cobra.Command{
		Use:   "export",
		Short: "Export every audit record as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := rt.components(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			if c.Audit == nil {
				return errors.New("audit log is disabled")
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return c.Audit.ExportJSON(cmd.Context(), w)
		},
	}
	export.Flags().StringVarP(&out, "output", "o", "", "write to file instead of stdout")

	cmd.AddCommand(export)
	return cmd
}
