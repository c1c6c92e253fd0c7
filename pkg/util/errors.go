// Package util provides utility functions and common error types.
package util

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors, one per error kind surfaced to callers.
var (
	ErrInvalidParam       = errors.New("invalid parameter")
	ErrNotConfigured      = errors.New("not configured")
	ErrNotInitialized     = errors.New("not initialized")
	ErrInUse              = errors.New("resource in use")
	ErrUnimplemented      = errors.New("unimplemented")
	ErrRestartRequired    = errors.New("restart required")
	ErrInternal           = errors.New("internal error")
	ErrPreconditionFailed = errors.New("precondition not met")
	ErrValidationFailed   = errors.New("validation failed")
)

// Kind is a coarse error classification used for metrics labels and exit codes.
type Kind string

const (
	KindOK              Kind = "ok"
	KindInvalidParam    Kind = "invalid_param"
	KindNotConfigured   Kind = "not_configured"
	KindNotInitialized  Kind = "not_initialized"
	KindInUse           Kind = "in_use"
	KindUnimplemented   Kind = "unimplemented"
	KindRestartRequired Kind = "restart_required"
	KindPrecondition    Kind = "precondition"
	KindInternal        Kind = "internal"
	KindUnknown         Kind = "unknown"
)

// KindOf classifies err. Restart-required wins over the other kinds so that
// a verification report carrying it is never mistaken for a plain rejection.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, ErrRestartRequired):
		return KindRestartRequired
	case errors.Is(err, ErrInternal):
		return KindInternal
	case errors.Is(err, ErrNotInitialized):
		return KindNotInitialized
	case errors.Is(err, ErrNotConfigured):
		return KindNotConfigured
	case errors.Is(err, ErrInUse):
		return KindInUse
	case errors.Is(err, ErrUnimplemented):
		return KindUnimplemented
	case errors.Is(err, ErrPreconditionFailed):
		return KindPrecondition
	case errors.Is(err, ErrInvalidParam), errors.Is(err, ErrValidationFailed):
		return KindInvalidParam
	}
	return KindUnknown
}

// PortError attaches a port identity and an error kind to a failure.
type PortError struct {
	Node    uint64
	Port    uint32
	SdkPort uint32
	Kind    error
	Msg     string
	Err     error
}

func (e *PortError) Error() string {
	msg := fmt.Sprintf("node %d port %d", e.Node, e.Port)
	if e.SdkPort != 0 {
		msg += fmt.Sprintf(" (sdk port %d)", e.SdkPort)
	}
	msg += ": " + e.Msg
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *PortError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewPortError creates a port error of the given kind.
func NewPortError(kind error, node uint64, port uint32, format string, args ...interface{}) *PortError {
	return &PortError{
		Node: node,
		Port: port,
		Kind: kind,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// WrapPortError wraps a device adapter failure for a port.
func WrapPortError(kind error, node uint64, port, sdkPort uint32, err error, format string, args ...interface{}) *PortError {
	return &PortError{
		Node:    node,
		Port:    port,
		SdkPort: sdkPort,
		Kind:    kind,
		Msg:     fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// PreconditionError represents a failed precondition check with context
type PreconditionError struct {
	Operation    string
	Resource     string
	Precondition string
	Details      string
}

func (e *PreconditionError) Error() string {
	msg := fmt.Sprintf("precondition failed for %s on %s: %s", e.Operation, e.Resource, e.Precondition)
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

func (e *PreconditionError) Unwrap() error {
	return ErrPreconditionFailed
}

// NewPreconditionError creates a new precondition error
func NewPreconditionError(operation, resource, precondition, details string) *PreconditionError {
	return &PreconditionError{
		Operation:    operation,
		Resource:     resource,
		Precondition: precondition,
		Details:      details,
	}
}

// ValidationError represents one or more validation failures. It matches
// both ErrValidationFailed and ErrInvalidParam.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0]
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrValidationFailed, ErrInvalidParam}
}

// NewValidationError creates a validation error from messages
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Errors: messages}
}

// ValidationBuilder helps accumulate validation errors
type ValidationBuilder struct {
	errors []string
}

// Add adds an error message if condition is false
func (v *ValidationBuilder) Add(condition bool, message string) *ValidationBuilder {
	if !condition {
		v.errors = append(v.errors, message)
	}
	return v
}

// AddError adds an error message unconditionally
func (v *ValidationBuilder) AddError(message string) *ValidationBuilder {
	v.errors = append(v.errors, message)
	return v
}

// AddErrorf adds a formatted error message
func (v *ValidationBuilder) AddErrorf(format string, args ...interface{}) *ValidationBuilder {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
	return v
}

// HasErrors returns true if there are validation errors
func (v *ValidationBuilder) HasErrors() bool {
	return len(v.errors) > 0
}

// Build returns the validation error or nil if no errors
func (v *ValidationBuilder) Build() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errors}
}

// InUseError represents a resource that cannot be removed because it's in use
type InUseError struct {
	Resource string
	UsedBy   []string
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("%s is in use by: %s", e.Resource, strings.Join(e.UsedBy, ", "))
}

func (e *InUseError) Unwrap() error {
	return ErrInUse
}

// NewInUseError creates an in-use error
func NewInUseError(resource string, usedBy ...string) *InUseError {
	return &InUseError{
		Resource: resource,
		UsedBy:   usedBy,
	}
}

// RestartRequiredError reports a configuration change that cannot be
// applied without restarting the component.
type RestartRequiredError struct {
	Reasons []string
}

func (e *RestartRequiredError) Error() string {
	return "restart required: " + strings.Join(e.Reasons, "; ")
}

func (e *RestartRequiredError) Unwrap() error {
	return ErrRestartRequired
}
