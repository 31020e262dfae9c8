package cdpcontrol

import (
	"errors"
	"fmt"
	"testing"
)

func TestHasCodeThroughWrapping(t *testing.T) {
	base := NewError(CodeStaleContext, "resolve node", nil)
	wrapped := fmt.Errorf("operation failed: %w", base)

	if !HasCode(wrapped, CodeStaleContext) {
		t.Fatal("code should be visible through wrapping")
	}
	if HasCode(wrapped, CodeValidation) {
		t.Fatal("wrong code must not match")
	}
	if HasCode(nil, CodeStaleContext) {
		t.Fatal("nil error carries no code")
	}
}

func TestCodedErrorMessage(t *testing.T) {
	err := NewError(CodeEvalFailure, "remote exception", errors.New("boom"))
	want := "EVAL_FAILURE: remote exception: boom"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}

	var coded *CodedError
	if !errors.As(err, &coded) || coded.Cause == nil {
		t.Fatal("cause must unwrap")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"coded unavailable", NewError(CodeCDPUnavailable, "send", nil), true},
		{"target closed hint", errors.New("rpc error: Target closed"), true},
		{"connection reset hint", errors.New("read: connection reset by peer"), true},
		{"broken pipe hint", errors.New("write: broken pipe"), true},
		{"plain failure", errors.New("unexpected token"), false},
		{"stale context is not transient", NewError(CodeStaleContext, "x", nil), false},
	}
	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.want {
			t.Errorf("%s: IsTransient = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsStaleContext(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"coded stale", NewError(CodeStaleContext, "resolve", nil), true},
		{"browser context message", errors.New("Cannot find context with specified id"), true},
		{"browser node message", errors.New("No node with given id found"), true},
		{"destroyed context message", errors.New("Execution context was destroyed."), true},
		{"unrelated", errors.New("Internal error"), false},
		{"transient is not stale", NewError(CodeCDPUnavailable, "send", nil), false},
	}
	for _, tt := range tests {
		if got := IsStaleContext(tt.err); got != tt.want {
			t.Errorf("%s: IsStaleContext = %v, want %v", tt.name, got, tt.want)
		}
	}
}
