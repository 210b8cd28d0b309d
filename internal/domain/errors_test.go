package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestAPIError(t *testing.T) {
	err := NewAPIError(CodeGeneration, "Report generation failed", "invalid JSON", "req-123")

	if err.Code != CodeGeneration {
		t.Errorf("Expected code %s, got %s", CodeGeneration, err.Code)
	}
	if err.RequestID != "req-123" {
		t.Errorf("Expected requestID req-123, got %s", err.RequestID)
	}
	if err.Timestamp.IsZero() {
		t.Error("Expected timestamp to be set")
	}
	if got := err.Error(); got != "GENERATION_FAILED: Report generation failed" {
		t.Errorf("Unexpected error string %q", got)
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("date", "must be YYYY-MM-DD", "yesterday")

	if err.Field != "date" {
		t.Errorf("Expected field date, got %s", err.Field)
	}
	if !strings.Contains(err.Error(), "'date'") {
		t.Errorf("Expected field name in %q", err.Error())
	}

	var target *ValidationError
	if !errors.As(error(err), &target) {
		t.Error("Expected errors.As to match *ValidationError")
	}
}

func TestWrappedErrorsUnwrap(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"index build", &IndexBuildError{Reason: "embedding failed", Err: cause}, "index build failed: embedding failed: boom"},
		{"generation parse", &GenerationParseError{Reason: "invalid JSON", Err: cause}, "failed to parse generated report: invalid JSON: boom"},
		{"extraction", &ExtractionFailure{Reason: "Failed to parse extraction JSON", Err: cause}, "Failed to parse extraction JSON: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
			if !errors.Is(tt.err, cause) {
				t.Error("Expected cause to be reachable with errors.Is")
			}
		})
	}
}

func TestWrappedErrorsWithoutCause(t *testing.T) {
	if got := (&IndexBuildError{Reason: "empty corpus"}).Error(); got != "index build failed: empty corpus" {
		t.Errorf("Unexpected %q", got)
	}
	if got := (&GenerationParseError{Reason: "missing sections"}).Error(); got != "failed to parse generated report: missing sections" {
		t.Errorf("Unexpected %q", got)
	}
	if got := (&ExtractionFailure{Reason: "No text"}).Error(); got != "No text" {
		t.Errorf("Unexpected %q", got)
	}
}

func TestEmbeddingModelMismatch(t *testing.T) {
	err := &EmbeddingModelMismatch{IndexModel: "text-embedding-ada-002", RetrieverModel: "text-embedding-3-small"}

	msg := err.Error()
	if !strings.Contains(msg, "text-embedding-ada-002") || !strings.Contains(msg, "text-embedding-3-small") {
		t.Errorf("Expected both models in %q", msg)
	}
}

func TestCitationIntegrityWarning(t *testing.T) {
	err := &CitationIntegrityWarning{InvalidIDs: []string{"made_up"}, UnlistedIDs: []string{"nice_ng28_bp"}}

	want := "some citations are invalid: not retrieved [made_up]; missing from citations list [nice_ng28_bp]"
	if got := err.Error(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}
