package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/diabetes-report-mcp-server/internal/domain"
	"github.com/diabetes-report-mcp-server/internal/retrieval"
	"github.com/diabetes-report-mcp-server/internal/service"
)

func newSearchCommand(rt *runtime) *cobra.Command {
	var (
		k      int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the guideline index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rt.components(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			results, err := c.Retriever.Retrieve(cmd.Context(), args[0], k)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			if asJSON {
				return printJSON(cmd, results)
			}
			printResults(cmd, results)
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", retrieval.DefaultTopK, "number of passages")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output results as JSON")
	return cmd
}

func printResults(cmd *cobra.Command, results []domain.RetrievalResult) {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return
	}
	for i, r := range results {
		cmd.Printf("  [%d] %s (%.3f)\n", i+1, r.PassageID, r.Score)
		cmd.Printf("      %s, %s\n", r.Source, r.Section)
	}
}

func newQueryCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "query [patient.json]",
		Short: "Show the retrieval query and red flags for a patient record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p domain.PatientState
			if err := readJSONFile(args[0], &p); err != nil {
				return err
			}
			p = service.NormalizePatient(p)

			out := struct {
				Query    string           `json:"query"`
				RedFlags []domain.RedFlag `json:"red_flags"`
			}{
				Query:    retrieval.BuildQuery(p),
				RedFlags: service.RedFlags(p),
			}
			if out.RedFlags == nil {
				out.RedFlags = []domain.RedFlag{}
			}
			return printJSON(cmd, out)
		},
	}
}
