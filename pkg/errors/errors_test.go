package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized},
		{code: CodeForbidden, status: http.StatusForbidden},
		{code: CodeNotFound, status: http.StatusNotFound},
		{code: CodeInvalidTransition, status: http.StatusUnprocessableEntity, detailsOK: true},
		{code: CodeInvalidRequestState, status: http.StatusUnprocessableEntity, detailsOK: true},
		{code: CodeUnknownLineItem, status: http.StatusUnprocessableEntity, detailsOK: true},
		{code: CodeWinnerAlreadySelected, status: http.StatusConflict, detailsOK: true},
		{code: CodeQuoteLocked, status: http.StatusConflict, detailsOK: true},
		{code: CodeConcurrencyConflict, status: http.StatusConflict, retryable: true},
		{code: CodeTransientStore, status: http.StatusServiceUnavailable, retryable: true},
		{code: CodeCurrencyMismatch, status: http.StatusUnprocessableEntity, detailsOK: true},
		{code: CodeIdempotency, status: http.StatusConflict},
		{code: CodeInternal, status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage == "" {
			t.Fatalf("code %s missing public message", tt.code)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	base.WithDetails(map[string]any{"field": "foo"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeTransientStore, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeTransientStore {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}

	formatted := Newf(CodeInvalidTransition, "cannot move from %s to %s", "ordered", "delivered")
	if formatted.Message() != "cannot move from ordered to delivered" {
		t.Fatalf("unexpected formatted message %q", formatted.Message())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeForbidden, "no entry"))
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
	if !IsCode(err, CodeForbidden) {
		t.Fatalf("IsCode should see wrapped code")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(New(CodeTransientStore, "db blip")) {
		t.Fatalf("transient store errors must be retryable")
	}
	if !IsRetryable(New(CodeConcurrencyConflict, "stale")) {
		t.Fatalf("concurrency conflicts must be retryable")
	}
	if IsRetryable(New(CodeValidation, "bad")) {
		t.Fatalf("validation errors must not be retried")
	}
	if IsRetryable(New(CodeWinnerAlreadySelected, "taken")) {
		t.Fatalf("winner conflicts must not be retried")
	}
	if IsRetryable(stdErrors.New("plain")) {
		t.Fatalf("untyped errors must not be retried")
	}
}

func TestDumpIncludesCodeAndChain(t *testing.T) {
	err := Wrap(CodeTransientStore, stdErrors.New("connection reset"), "load request")
	d := Dump(err)
	if d.Code != CodeTransientStore {
		t.Fatalf("expected code in dump, got %s", d.Code)
	}
	if len(d.Chain) != 2 {
		t.Fatalf("expected two chain entries, got %d", len(d.Chain))
	}
}

func TestDumpCarriesEntityIDs(t *testing.T) {
	err := New(CodeConcurrencyConflict, "request was modified concurrently").
		WithDetails(map[string]any{"request_id": "r-1", "version": 3, "allowed": []string{"x"}})
	d := Dump(Wrap(CodeConcurrencyConflict, err, "mark ordered"))
	if !d.Retryable {
		t.Fatalf("conflicts are retryable")
	}
	if d.Entities["request_id"] != "r-1" || d.Entities["entity_version"] != "3" {
		t.Fatalf("unexpected entities %v", d.Entities)
	}
	if _, ok := d.Entities["allowed"]; ok {
		t.Fatalf("only entity keys are copied, got %v", d.Entities)
	}

	fields := d.Fields()
	if fields["request_id"] != "r-1" || fields["error_code"] != CodeConcurrencyConflict {
		t.Fatalf("unexpected fields %v", fields)
	}
	if _, ok := fields["pg_code"]; ok {
		t.Fatalf("pg fields must be omitted without a postgres error")
	}
}

func TestDumpClassifiesPostgresErrors(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "uniq_supplier_quotes_selected_per_request", TableName: "supplier_quotes"}
	d := Dump(Wrap(CodeWinnerAlreadySelected, pgErr, "select supplier quote"))
	if d.PGClass != "23" || d.PGConstraint != "uniq_supplier_quotes_selected_per_request" {
		t.Fatalf("unexpected pg dump %+v", d)
	}
	if d.Fields()["pg_table"] != "supplier_quotes" {
		t.Fatalf("expected pg table in fields")
	}
}
