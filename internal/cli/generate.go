package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/diabetes-report-mcp-server/internal/domain"
)

const transportLabel = "cli"

// ErrGenerationFailed is returned when the pipeline ends in FAILED.
var ErrGenerationFailed = errors.New("report generation failed")

func newExtractCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "extract [report.pdf]",
		Short: "Extract lab values from a PDF lab report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rt.components(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			res := c.ExtractPDF(cmd.Context(), filepath.Base(args[0]), f)
			return printJSON(cmd, struct {
				domain.ExtractionResult
				PDFData domain.PDFData `json:"pdf_data"`
			}{res, domain.PDFDataFromExtraction(res)})
		},
	}
}

func newGenerateCommand(rt *runtime) *cobra.Command {
	var (
		pdfDataPath string
		requestID   string
	)

	cmd := &cobra.Command{
		Use:   "generate [patient.json]",
		Short: "Generate and store a report for one patient record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := domain.GenerationRequest{RequestID: requestID}
			if err := readJSONFile(args[0], &req.Form); err != nil {
				return err
			}
			if pdfDataPath != "" {
				req.PDF = &domain.PDFData{}
				if err := readJSONFile(pdfDataPath, req.PDF); err != nil {
					return err
				}
			}

			c, err := rt.components(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			res := c.Orchestrator.Run(cmd.Context(), req)
			c.RecordGeneration(cmd.Context(), res, transportLabel)

			if err := printJSON(cmd, res); err != nil {
				return err
			}
			if !res.Accepted() {
				return fmt.Errorf("%w after %d attempts", ErrGenerationFailed, len(res.Attempts))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pdfDataPath, "pdf-data", "", "JSON file with extracted lab values to merge")
	cmd.Flags().StringVar(&requestID, "request-id", "", "request id for the audit log")
	return cmd
}
