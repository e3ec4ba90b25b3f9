// Package errors provides centralized error definitions and error handling
// utilities for the maplan codebase. It defines the planner's error taxonomy,
// error constructors with context wrapping, and classification helpers.
//
// # Error Taxonomy
//
// The multi-agent protocols distinguish three failure classes:
//
//   - Protocol errors (ProtocolError): an unexpected message kind or shape, a
//     baton-holder mismatch, or a malformed payload. These are fatal to the
//     agent process; there is no defined recovery.
//   - Consistency warnings (ConsistencyError): internal bookkeeping anomalies
//     such as a literal with no assigned level after synchronization. These
//     are logged and tolerated; downstream code treats the missing data as
//     unreachable.
//   - Unreachability is NOT an error. A goal with no path is represented as a
//     sentinel cost (see the dtg package) and propagated arithmetically so
//     that plan ranking stays well-defined.
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewProtocolError("unexpected message kind", errors.ErrUnknownMessage).
//	    WithAgent("agent-2").WithKind("rpg_levels")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrBatonMismatch) { ... }
//
//	var perr *errors.ProtocolError
//	if errors.As(err, &perr) { ... }
//
//	if errors.IsProtocol(err) { ... } // fail fast
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Protocol-related sentinel errors.
var (
	// ErrUnknownMessage indicates a message of an unrecognized kind was received.
	ErrUnknownMessage = New("unknown message kind")
	// ErrBadPayload indicates a message payload did not match its kind.
	ErrBadPayload = New("malformed message payload")
	// ErrBatonMismatch indicates a message arrived from an agent that does not
	// hold the baton for the current round.
	ErrBatonMismatch = New("baton holder mismatch")
	// ErrRingClosed indicates the communication ring was shut down while an
	// agent was still sending or receiving.
	ErrRingClosed = New("communication ring closed")
)

// Task-related sentinel errors.
var (
	// ErrVariableNotFound indicates a reference to a variable absent from the
	// grounded task.
	ErrVariableNotFound = New("variable not found")
	// ErrValueNotFound indicates a reference to a value outside a variable's
	// reachable domain.
	ErrValueNotFound = New("value not found")
	// ErrTaskInvalid indicates the grounded task failed validation.
	ErrTaskInvalid = New("grounded task is invalid")
)

// Search-related sentinel errors.
var (
	// ErrNoPlanFound indicates the search space was exhausted without
	// reaching the goals.
	ErrNoPlanFound = New("no plan found")
	// ErrSearchCanceled indicates the search was canceled by the caller.
	ErrSearchCanceled = New("search canceled")
)

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message  string
	cause    error
	severity Severity
	fatal    bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsFatal returns whether the error must terminate the agent process.
func (e *baseError) IsFatal() bool {
	return e.fatal
}

// -----------------------------------------------------------------------------
// Protocol Errors
// -----------------------------------------------------------------------------

// ProtocolError represents a violation of the inter-agent message protocol.
// Protocol errors are fatal: peers are mid-protocol and there is no recovery
// path that leaves the ring in a consistent state.
//
// Example:
//
//	err := errors.NewProtocolError("unexpected reply", errors.ErrUnknownMessage).
//	    WithAgent("agent-3")
//	fmt.Println(err) // "protocol error [agent=agent-3]: unexpected reply: unknown message kind"
type ProtocolError struct {
	baseError
	Agent string
	Kind  string
}

// NewProtocolError creates a new ProtocolError.
func NewProtocolError(message string, cause error) *ProtocolError {
	return &ProtocolError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityCritical,
			fatal:    true,
		},
	}
}

// WithAgent adds the peer agent name to the error context.
func (e *ProtocolError) WithAgent(agent string) *ProtocolError {
	e.Agent = agent
	return e
}

// WithKind adds the offending message kind to the error context.
func (e *ProtocolError) WithKind(kind string) *ProtocolError {
	e.Kind = kind
	return e
}

// Error returns the formatted error message.
func (e *ProtocolError) Error() string {
	var parts []string
	if e.Agent != "" {
		parts = append(parts, fmt.Sprintf("agent=%s", e.Agent))
	}
	if e.Kind != "" {
		parts = append(parts, fmt.Sprintf("kind=%s", e.Kind))
	}

	prefix := "protocol error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("protocol error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Consistency Errors
// -----------------------------------------------------------------------------

// ConsistencyError represents an internal data-consistency anomaly, such as a
// literal that has no assigned level after RPG synchronization. These are
// never fatal: the caller logs them and treats the affected datum as
// unreachable.
type ConsistencyError struct {
	baseError
	Variable string
	Value    string
}

// NewConsistencyError creates a new ConsistencyError.
func NewConsistencyError(message string) *ConsistencyError {
	return &ConsistencyError{
		baseError: baseError{
			message:  message,
			severity: SeverityWarning,
			fatal:    false,
		},
	}
}

// WithLiteral adds the affected (variable, value) pair to the error context.
func (e *ConsistencyError) WithLiteral(variable, value string) *ConsistencyError {
	e.Variable = variable
	e.Value = value
	return e
}

// Error returns the formatted error message.
func (e *ConsistencyError) Error() string {
	if e.Variable != "" {
		return fmt.Sprintf("consistency warning [%s=%s]: %s", e.Variable, e.Value, e.message)
	}
	return fmt.Sprintf("consistency warning: %s", e.message)
}

// -----------------------------------------------------------------------------
// Task Errors
// -----------------------------------------------------------------------------

// TaskError represents an error in the grounded task model, typically raised
// during loading or validation.
type TaskError struct {
	baseError
	Variable string
	Action   string
}

// NewTaskError creates a new TaskError.
func NewTaskError(message string, cause error) *TaskError {
	return &TaskError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
			fatal:    false,
		},
	}
}

// WithVariable adds the variable name to the error context.
func (e *TaskError) WithVariable(name string) *TaskError {
	e.Variable = name
	return e
}

// WithAction adds the action name to the error context.
func (e *TaskError) WithAction(name string) *TaskError {
	e.Action = name
	return e
}

// Error returns the formatted error message.
func (e *TaskError) Error() string {
	var parts []string
	if e.Variable != "" {
		parts = append(parts, fmt.Sprintf("var=%s", e.Variable))
	}
	if e.Action != "" {
		parts = append(parts, fmt.Sprintf("action=%s", e.Action))
	}

	prefix := "task error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("task error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// classifier is implemented by all error types in this package.
type classifier interface {
	Severity() Severity
	IsFatal() bool
}

// IsProtocol returns true if err is (or wraps) a ProtocolError.
func IsProtocol(err error) bool {
	var perr *ProtocolError
	return As(err, &perr)
}

// IsConsistency returns true if err is (or wraps) a ConsistencyError.
func IsConsistency(err error) bool {
	var cerr *ConsistencyError
	return As(err, &cerr)
}

// IsFatal returns true if the error must terminate the agent process.
// Errors that do not carry a classification default to non-fatal.
func IsFatal(err error) bool {
	var c classifier
	if As(err, &c) {
		return c.IsFatal()
	}
	return false
}

// SeverityOf returns the severity of the error, or SeverityError for errors
// that do not carry a classification.
func SeverityOf(err error) Severity {
	var c classifier
	if As(err, &c) {
		return c.Severity()
	}
	return SeverityError
}
