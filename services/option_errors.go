package services

import (
	"errors"
	"fmt"
)

// ErrorKind groups lifecycle errors by what the caller got wrong
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindState         ErrorKind = "state"
	KindAuthorization ErrorKind = "authorization"
	KindNotFound      ErrorKind = "not_found"
)

// LifecycleError is a program error surfaced verbatim to the submitting transaction
type LifecycleError struct {
	Kind    ErrorKind
	Code    string
	Number  uint32
	Message string
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Number, e.Message)
}

// Custom program errors start at 6000
var (
	ErrInvalidExpiration = &LifecycleError{
		Kind: KindValidation, Code: "InvalidExpiration", Number: 6000,
		Message: "The expiration time is invalid. The option cannot expire in the past.",
	}
	ErrOptionNotActive = &LifecycleError{
		Kind: KindState, Code: "OptionNotActive", Number: 6001,
		Message: "Option is not active.",
	}
	ErrOptionExpired = &LifecycleError{
		Kind: KindState, Code: "OptionExpired", Number: 6002,
		Message: "Option has expired.",
	}
	ErrUnauthorizedExercise = &LifecycleError{
		Kind: KindAuthorization, Code: "UnauthorizedExercise", Number: 6003,
		Message: "Unauthorized attempt to exercise option.",
	}
	ErrOptionNotExpired = &LifecycleError{
		Kind: KindState, Code: "OptionNotExpired", Number: 6004,
		Message: "Option has not yet expired.",
	}
	ErrOptionAlreadyExercised = &LifecycleError{
		Kind: KindState, Code: "OptionAlreadyExercised", Number: 6005,
		Message: "Option has already been exercised.",
	}
	ErrOptionAlreadyClosed = &LifecycleError{
		Kind: KindState, Code: "OptionAlreadyClosed", Number: 6006,
		Message: "The option contract has already been closed.",
	}
	ErrUnauthorizedCaller = &LifecycleError{
		Kind: KindAuthorization, Code: "UnauthorizedCaller", Number: 6007,
		Message: "Caller does not own the option.",
	}
	ErrOptionNotFound = &LifecycleError{
		Kind: KindNotFound, Code: "OptionNotFound", Number: 6008,
		Message: "Option account does not exist.",
	}
)

// AllLifecycleErrors lists every program error in number order
var AllLifecycleErrors = []*LifecycleError{
	ErrInvalidExpiration,
	ErrOptionNotActive,
	ErrOptionExpired,
	ErrUnauthorizedExercise,
	ErrOptionNotExpired,
	ErrOptionAlreadyExercised,
	ErrOptionAlreadyClosed,
	ErrUnauthorizedCaller,
	ErrOptionNotFound,
}

// AsLifecycleError extracts a LifecycleError from an error chain
func AsLifecycleError(err error) (*LifecycleError, bool) {
	var le *LifecycleError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// ErrorKindOf returns the kind of a lifecycle error, or "" for anything else
func ErrorKindOf(err error) ErrorKind {
	if le, ok := AsLifecycleError(err); ok {
		return le.Kind
	}
	return ""
}
