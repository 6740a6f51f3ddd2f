package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/lib/pq"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeInvalidInput, status: http.StatusBadRequest, publicMsg: "invalid input", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "something went wrong", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
		{code: CodeCircuitOpen, status: http.StatusServiceUnavailable, publicMsg: "payment provider temporarily unavailable", retryable: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
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

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestPublicOverridesHiddenMessage(t *testing.T) {
	hidden := New(CodeDependency, "stripe returned 502")
	if hidden.ShowsMessage() {
		t.Fatal("dependency messages are hidden by default")
	}
	if !hidden.Public().ShowsMessage() {
		t.Fatal("expected public error to show its message")
	}
	if New(CodeDependency, "").Public().ShowsMessage() {
		t.Fatal("an empty message never replaces the public one")
	}
	if !New(CodeNotFound, "plan not found").ShowsMessage() {
		t.Fatal("pass-message codes show their message")
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsCodeWalksChain(t *testing.T) {
	err := fmt.Errorf("apply plan change: %w", New(CodeStateConflict, "subscription moved"))
	if !IsCode(err, CodeStateConflict) {
		t.Fatalf("expected IsCode to find state conflict in %v", err)
	}
	if IsCode(err, CodeNotFound) {
		t.Fatalf("did not expect not found code")
	}
	if IsCode(nil, CodeInternal) {
		t.Fatalf("nil error should not match any code")
	}
}

func TestDumpExtractsPQDetails(t *testing.T) {
	pgErr := &pq.Error{Code: "23505", Constraint: "ux_subscriptions_user_live", Table: "subscriptions", Message: "duplicate key"}
	err := Wrap(CodeConflict, pgErr, "insert subscription")

	d := Dump(err)
	if d.Code != CodeConflict {
		t.Fatalf("expected conflict code, got %s", d.Code)
	}
	if d.PGCode != "23505" || d.PGConstraint != "ux_subscriptions_user_live" || d.PGTable != "subscriptions" {
		t.Fatalf("unexpected pg fields %+v", d)
	}
	if len(d.Chain) != 2 {
		t.Fatalf("expected two chain entries, got %v", d.Chain)
	}
}

type stubGatewayErr struct{}

func (stubGatewayErr) Error() string { return "card declined" }

func (stubGatewayErr) GatewayFailure() (string, int, string) {
	return "create_checkout_session", 402, "card_declined"
}

func TestDumpExtractsGatewayFailure(t *testing.T) {
	err := Wrap(CodeDependency, stubGatewayErr{}, "checkout")

	fields := Dump(err).Fields()
	if fields["gateway_op"] != "create_checkout_session" || fields["gateway_status"] != 402 || fields["gateway_code"] != "card_declined" {
		t.Fatalf("unexpected gateway fields %v", fields)
	}
	if _, ok := fields["pg_code"]; ok {
		t.Fatalf("empty pg fields must be omitted: %v", fields)
	}
}
