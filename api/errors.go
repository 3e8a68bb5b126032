// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Common error types and error handling utilities for hioload-burn.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the engine. Fatal ones abort the owning worker.
var (
	ErrRingSetup           = errors.New("completion ring setup failed")
	ErrSubmissionQueueFull = errors.New("submission queue full after flush")
	ErrSocketCreate        = errors.New("socket creation failed")
	ErrRegistration        = errors.New("ring resource registration failed")
	ErrNotSupported        = errors.New("operation not supported")
	ErrUnknownCorrelation  = errors.New("completion for unknown correlation id")
	ErrOperationInFlight   = errors.New("connection already has an operation in flight")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrRingClosed          = errors.New("ring is closed")
)

// ErrorCode represents specific error conditions in the engine.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeRingSetup
	ErrCodeResourceExhausted
	ErrCodeSocket
	ErrCodeRegistration
	ErrCodeNotSupported
	ErrCodeInternal
)

// String returns a short name of the code, used as a log field.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "ok"
	case ErrCodeInvalidArgument:
		return "invalid_argument"
	case ErrCodeRingSetup:
		return "ring_setup"
	case ErrCodeResourceExhausted:
		return "resource_exhausted"
	case ErrCodeSocket:
		return "socket"
	case ErrCodeRegistration:
		return "registration"
	case ErrCodeNotSupported:
		return "not_supported"
	default:
		return "internal"
	}
}

// Error represents a structured error with code, context and an optional cause.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if len(e.Context) > 0 {
		msg = fmt.Sprintf("%s (context: %+v)", msg, e.Context)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.Err }

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// Wrap creates a structured error around cause.
func Wrap(cause error, code ErrorCode, message string) *Error {
	e := NewError(code, message)
	e.Err = cause
	return e
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}
