// Package pdf turns lab report PDFs into plain text using the pdftotext binary.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// ScannedThreshold is the minimum number of characters the first page must
// yield before the document is treated as text rather than a scan.
const ScannedThreshold = 50

// ScannedWarning is reported when a document looks like an image-only scan.
const ScannedWarning = "Document appears to be scanned - OCR not supported"

// ErrEmptyDocument is returned for zero-length input.
var ErrEmptyDocument = errors.New("empty PDF document")

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Document is the text of a PDF split per page.
type Document struct {
	Filename string
	Pages    []string
}

// Text joins all pages with page markers.
func (d *Document) Text() string {
	var b strings.Builder
	for i, p := range d.Pages {
		fmt.Fprintf(&b, "\n--- Page %d ---\n%s", i+1, p)
	}
	return b.String()
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	return len(d.Pages)
}

// LooksScanned reports whether the first page has too little text to be a
// text-layer PDF.
func (d *Document) LooksScanned() bool {
	if len(d.Pages) == 0 {
		return true
	}
	return len([]rune(strings.TrimSpace(d.Pages[0]))) < ScannedThreshold
}

// Provenance describes where the text came from.
func (d *Document) Provenance() map[string]string {
	return map[string]string{
		"filename":    d.Filename,
		"page_count":  fmt.Sprint(d.PageCount()),
		"text_length": fmt.Sprint(len(d.Text())),
	}
}

// Extractor wraps pdftotext.
type Extractor struct {
	binary string
	runner CommandRunner
	logger *logrus.Logger
}

// NewExtractor creates an extractor. An empty binary defaults to "pdftotext"
// and a nil runner to ExecRunner.
func NewExtractor(binary string, runner CommandRunner, logger *logrus.Logger) *Extractor {
	if binary == "" {
		binary = "pdftotext"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Extractor{binary: binary, runner: runner, logger: logger}
}

// ExtractFile reads the text of the PDF at path.
func (e *Extractor) ExtractFile(ctx context.Context, path string) (*Document, error) {
	out, err := e.runner.Run(ctx, e.binary, "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		return nil, fmt.Errorf("PDF extraction failed: %w", err)
	}

	doc := &Document{Filename: baseName(path), Pages: splitPages(string(out))}
	e.logger.WithFields(logrus.Fields{
		"file":  doc.Filename,
		"pages": doc.PageCount(),
	}).Debug("Extracted PDF text")
	return doc, nil
}

// Extract spools r to a temporary file and extracts it.
func (e *Extractor) Extract(ctx context.Context, filename string, r io.Reader) (*Document, error) {
	tmp, err := os.CreateTemp("", "lab-report-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("spooling PDF: %w", err)
	}
	if n == 0 {
		return nil, ErrEmptyDocument
	}

	doc, err := e.ExtractFile(ctx, tmp.Name())
	if err != nil {
		return nil, err
	}
	if filename != "" {
		doc.Filename = filename
	}
	return doc, nil
}

// splitPages splits pdftotext output on form feeds, dropping the trailing empty page.
func splitPages(out string) []string {
	pages := strings.Split(out, "\f")
	if n := len(pages); n > 0 && strings.TrimSpace(pages[n-1]) == "" {
		pages = pages[:n-1]
	}
	return pages
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
