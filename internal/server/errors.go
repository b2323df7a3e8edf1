package server

import (
	"errors"
	"fmt"
)

// Code classifies a failed call.
type Code string

const (
	CodeInvalidArgument    Code = "invalid_argument"
	CodeNotFound           Code = "not_found"
	CodeAlreadyExists      Code = "already_exists"
	CodeFailedPrecondition Code = "failed_precondition"
	CodeInternal           Code = "internal"
)

// Status is the error returned by every handler.
type Status struct {
	Code    Code
	Message string
}

func (s *Status) Error() string {
	return s.Message
}

// Is lets errors.Is match on the code alone.
func (s *Status) Is(target error) bool {
	t, ok := target.(*Status)
	if !ok {
		return false
	}
	return t.Message == "" && t.Code == s.Code
}

func status(code Code, format string, args ...any) *Status {
	return &Status{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Sentinels usable with errors.Is.
var (
	ErrInvalidArgument    = &Status{Code: CodeInvalidArgument}
	ErrNotFound           = &Status{Code: CodeNotFound}
	ErrAlreadyExists      = &Status{Code: CodeAlreadyExists}
	ErrFailedPrecondition = &Status{Code: CodeFailedPrecondition}
)

// CodeOf extracts the status code of err, or CodeInternal for anything that
// is not a *Status.
func CodeOf(err error) Code {
	var s *Status
	if errors.As(err, &s) {
		return s.Code
	}
	return CodeInternal
}
