package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/meridian-hq/meridian/internal/shared"
)

func TestRespondErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantTitle  string
	}{
		{"unauthenticated", shared.ErrUnauthenticated, http.StatusUnauthorized, "Unauthenticated"},
		{"forbidden wrapped", shared.Forbiddenf("cross-tenant access"), http.StatusForbidden, "Forbidden"},
		{"not found wrapped", shared.NotFoundf("role %d", 7), http.StatusNotFound, "Not Found"},
		{"precondition wrapped", shared.Preconditionf("entity is already trashed"), http.StatusPreconditionFailed, "Precondition Failed"},
		{"conflict wrapped", shared.Conflictf("slug taken"), http.StatusConflict, "Conflict"},
		{"unknown", errors.New("pg down"), http.StatusInternalServerError, "Internal Error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondError(rec, tc.err)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			var problem ProblemDetail
			if err := json.Unmarshal(rec.Body.Bytes(), &problem); err != nil {
				t.Fatalf("unmarshal body: %v", err)
			}
			if problem.Title != tc.wantTitle {
				t.Fatalf("title = %q, want %q", problem.Title, tc.wantTitle)
			}
			if problem.Status != tc.wantStatus {
				t.Fatalf("problem status = %d, want %d", problem.Status, tc.wantStatus)
			}
		})
	}
}

func TestRespondErrorHidesCredentialDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, shared.ErrInvalidCredentials)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var problem ProblemDetail
	if err := json.Unmarshal(rec.Body.Bytes(), &problem); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	// Login failures never leak which part of the credentials was wrong.
	if problem.Detail != "" {
		t.Fatalf("detail = %q, want empty", problem.Detail)
	}
}

func TestRespondErrorDoesNotMistakeOutageForDenial(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("connection refused"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var problem ProblemDetail
	_ = json.Unmarshal(rec.Body.Bytes(), &problem)
	if problem.Detail != "" {
		t.Fatalf("internal detail leaked: %q", problem.Detail)
	}
}
