package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// APIError represents a standardized error response
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	CodeInvalidInput   = "INVALID_INPUT"
	CodeValidation     = "VALIDATION_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeRetrieval      = "RETRIEVAL_ERROR"
	CodeGeneration     = "GENERATION_FAILED"
	CodeExtraction     = "EXTRACTION_ERROR"
	CodeStorage        = "STORAGE_ERROR"
	CodeExternalAPI    = "EXTERNAL_API_ERROR"
	CodeRateLimit      = "RATE_LIMIT_EXCEEDED"
	CodeInternalServer = "INTERNAL_SERVER_ERROR"
)

// Sentinel errors.
var (
	ErrIndexNotFound  = errors.New("index not found")
	ErrReportNotFound = errors.New("report not found")
	ErrEmptyQuery     = errors.New("query is empty")
)

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// IndexBuildError is fatal to an index build. No artifacts are left behind.
type IndexBuildError struct {
	Reason string
	Err    error
}

func (e *IndexBuildError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("index build failed: %s: %v", e.Reason, e.Err)
	}
	return "index build failed: " + e.Reason
}

func (e *IndexBuildError) Unwrap() error { return e.Err }

// EmbeddingModelMismatch is returned before any search when the retriever embeds
// with a different model than the one the index was built with.
type EmbeddingModelMismatch struct {
	IndexModel     string
	RetrieverModel string
}

func (e *EmbeddingModelMismatch) Error() string {
	return fmt.Sprintf("embedding model mismatch: index built with %q, retriever uses %q",
		e.IndexModel, e.RetrieverModel)
}

// GenerationParseError means the model output was not a valid report.
type GenerationParseError struct {
	Reason string
	Err    error
}

func (e *GenerationParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to parse generated report: %s: %v", e.Reason, e.Err)
	}
	return "failed to parse generated report: " + e.Reason
}

func (e *GenerationParseError) Unwrap() error { return e.Err }

// CitationIntegrityWarning records citation ids that do not resolve to the
// evidence supplied for the generation call.
type CitationIntegrityWarning struct {
	InvalidIDs  []string
	UnlistedIDs []string
}

func (e *CitationIntegrityWarning) Error() string {
	var b strings.Builder
	b.WriteString("some citations are invalid")
	if len(e.InvalidIDs) > 0 {
		fmt.Fprintf(&b, ": not retrieved [%s]", strings.Join(e.InvalidIDs, ", "))
	}
	if len(e.UnlistedIDs) > 0 {
		fmt.Fprintf(&b, "; missing from citations list [%s]", strings.Join(e.UnlistedIDs, ", "))
	}
	return b.String()
}

// ExtractionFailure describes why an extraction produced no usable values.
type ExtractionFailure struct {
	Reason string
	Err    error
}

func (e *ExtractionFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ExtractionFailure) Unwrap() error { return e.Err }
