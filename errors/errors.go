// Package errors provides error handling for mosaic.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrNotRegistered) {
//	    // handle unknown entity
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Common sentinel errors for use across mosaic.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotRegistered indicates the referenced domain or extension does not exist
	ErrNotRegistered = New("not registered")

	// ErrAlreadyRegistered indicates a duplicate registration attempt
	ErrAlreadyRegistered = New("already registered")

	// ErrAlreadyMounted indicates the extension is already mounted
	ErrAlreadyMounted = New("already mounted")

	// ErrAlreadyMounting indicates a mount is in flight for the extension
	ErrAlreadyMounting = New("already mounting")

	// ErrDomainOccupied indicates the domain already has a mounted extension
	ErrDomainOccupied = New("domain already has a mounted extension")

	// ErrNoHandler indicates no handler accepted the action target or entry
	ErrNoHandler = New("no handler registered")

	// ErrBridgeDisposed indicates an operation on a disposed bridge
	ErrBridgeDisposed = New("bridge disposed")

	// ErrBridgeNotConnected indicates the bridge pair was never connected
	ErrBridgeNotConnected = New("bridge not connected")

	// ErrActionTimeout indicates a chain step exceeded its effective timeout
	ErrActionTimeout = New("action timed out")
)

// IsNotRegisteredError checks if an error is or wraps ErrNotRegistered
func IsNotRegisteredError(err error) bool {
	return err != nil && Is(err, ErrNotRegistered)
}

// IsTimeoutError checks if an error is or wraps ErrActionTimeout
func IsTimeoutError(err error) bool {
	return err != nil && Is(err, ErrActionTimeout)
}

// NewNotRegisteredError creates a not-registered error with a formatted message
func NewNotRegisteredError(format string, args ...interface{}) error {
	return Wrap(ErrNotRegistered, Newf(format, args...).Error())
}
