package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("message too long"), http.StatusBadRequest},
		{"not found", NotFound("document not found (ID: %s)", "abc"), http.StatusNotFound},
		{"duplicate", Duplicate("already uploaded"), http.StatusConflict},
		{"external", External("embed", errors.New("boom")), http.StatusInternalServerError},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
		{"wrapped not found", fmt.Errorf("delete: %w", NotFound("missing")), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestExternal_keepsClassifiedErrors(t *testing.T) {
	nf := NotFound("gone")
	if got := External("query", nf); got != error(nf) {
		t.Errorf("External should return classified error unchanged, got %v", got)
	}
	if External("query", nil) != nil {
		t.Error("External(nil) should be nil")
	}
}

func TestExternal_unwrapsCause(t *testing.T) {
	err := External("embed", context.DeadlineExceeded)
	if !IsExternal(err) {
		t.Fatalf("expected external kind, got %q", KindOf(err))
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("cause should be reachable with errors.Is")
	}
	if err.Error() != "embed: context deadline exceeded" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestPredicates(t *testing.T) {
	if !IsValidation(Validation("x")) || IsValidation(Duplicate("x")) {
		t.Error("IsValidation mismatch")
	}
	if !IsDuplicate(Duplicate("x")) {
		t.Error("IsDuplicate mismatch")
	}
	if !IsNotFound(fmt.Errorf("wrap: %w", NotFound("x"))) {
		t.Error("IsNotFound should see through wrapping")
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("plain errors have no kind")
	}
}
