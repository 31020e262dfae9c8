package cdpcontrol

import (
	"errors"
	"fmt"
	"strings"
)

const (
	CodeValidation       = "VALIDATION"
	CodeNotReady         = "NOT_READY"
	CodeFrameNotFound    = "FRAME_NOT_FOUND"
	CodeStaleContext     = "STALE_CONTEXT"
	CodeNodeUnresolvable = "NODE_UNRESOLVABLE"
	CodeEvalFailure      = "EVAL_FAILURE"
	CodeEvalTimeout      = "EVAL_TIMEOUT"
	CodeCDPUnavailable   = "CDP_UNAVAILABLE"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func NewError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// HasCode reports whether err carries the given stable code.
func HasCode(err error, code string) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}
	return coded.Code == code
}

// transientHints are substrings in error causes that indicate a transient
// failure worth retrying (e.g. broken connection, closed session).
var transientHints = []string{
	"context canceled",
	"target closed",
	"session closed",
	"websocket",
	"connection reset",
	"broken pipe",
	"eof",
	"connection refused",
	"connection closed",
}

// staleContextHints are substrings the browser returns when a command
// references an execution context or node that no longer exists. These are
// the expected steady state of inspecting a live page, never fatal.
var staleContextHints = []string{
	"cannot find context with specified id",
	"cannot find execution context",
	"execution context was destroyed",
	"no node with given id",
	"node with given id does not belong to the document",
	"could not find node with given id",
	"inspected target navigated or closed",
}

func matchesHint(err error, hints []string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range hints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// IsTransient reports whether err looks like a temporarily broken channel.
func IsTransient(err error) bool {
	if HasCode(err, CodeCDPUnavailable) {
		return true
	}
	return matchesHint(err, transientHints)
}

// IsStaleContext reports whether err indicates a destroyed execution context
// or a node identity that no longer resolves.
func IsStaleContext(err error) bool {
	if HasCode(err, CodeStaleContext) {
		return true
	}
	return matchesHint(err, staleContextHints)
}
