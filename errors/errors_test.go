package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_New_Retryable(t *testing.T) {
	tests := []struct {
		code      ErrorCode
		retryable bool
	}{
		{ErrCodeTimeout, true},
		{ErrCodeRunInProgress, true},
		{ErrCodeNotFound, false},
		{ErrCodeGraphCycle, false},
		{ErrCodeInternal, false},
	}
	for _, tc := range tests {
		t.Run(string(tc.code), func(t *testing.T) {
			err := New(tc.code, "msg", http.StatusTeapot)
			if err.Retryable != tc.retryable {
				t.Errorf("expected retryable=%v, got %v", tc.retryable, err.Retryable)
			}
			if err.HTTPStatus != http.StatusTeapot {
				t.Errorf("expected status %d, got %d", http.StatusTeapot, err.HTTPStatus)
			}
		})
	}
}

func TestAppError_NotFound_EmptyID(t *testing.T) {
	err := NotFound("node", "")
	if _, ok := err.Details["id"]; ok {
		t.Error("expected no 'id' key in details when id is empty")
	}
	if err.Details["resource"] != "node" {
		t.Errorf("expected resource=node, got %v", err.Details["resource"])
	}
}

func TestAppError_Error_WithCause(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := Internal(cause)
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected cause in message, got %q", err.Error())
	}
	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
}

func TestAppError_WithHelpers_DoNotMutateSentinel(t *testing.T) {
	sentinel := New(ErrCodeRunInProgress, "a run is already active", http.StatusConflict)

	enriched := sentinel.WithDetail("job_id", "JOB-1").WithCause(fmt.Errorf("inner"))

	if sentinel.Cause != nil || len(sentinel.Details) != 0 {
		t.Fatalf("sentinel was mutated: %+v", sentinel)
	}
	if enriched.Details["job_id"] != "JOB-1" {
		t.Errorf("expected job_id detail, got %v", enriched.Details)
	}
	if !stderrors.Is(enriched, sentinel) {
		t.Error("expected enriched copy to match sentinel by code")
	}
	if stderrors.Is(enriched, NotFound("node", "x")) {
		t.Error("different codes must not match")
	}
}

func TestAppError_WithDetails_Merges(t *testing.T) {
	err := InvalidInput("edge", "unknown target").WithDetails(map[string]any{"target": "n9"})
	if err.Details["field"] != "edge" || err.Details["target"] != "n9" {
		t.Errorf("unexpected details: %v", err.Details)
	}
}

func TestToResponse(t *testing.T) {
	err := MissingField("id")
	resp := err.ToResponse()
	if resp.Error.Code != ErrCodeMissingField {
		t.Errorf("expected MISSING_FIELD, got %s", resp.Error.Code)
	}
	if resp.Error.Details["field"] != "id" {
		t.Errorf("expected field detail, got %v", resp.Error.Details)
	}
}

func TestAsAppError(t *testing.T) {
	wrapped := fmt.Errorf("wrap: %w", Conflict("busy"))
	appErr, ok := AsAppError(wrapped)
	if !ok {
		t.Fatal("expected AppError to be found")
	}
	if appErr.Code != ErrCodeConflict {
		t.Errorf("expected CONFLICT, got %s", appErr.Code)
	}
	if IsAppError(fmt.Errorf("plain")) {
		t.Error("plain error must not be an AppError")
	}
}
