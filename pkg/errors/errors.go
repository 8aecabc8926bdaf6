package errors

import (
	stderrors "errors"
	"fmt"
)

type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Constructors
func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func NotFound(msg string) error {
	return New(CodeNotFound, msg)
}

func InvalidTarget(msg string) error {
	return New(CodeInvalidTarget, msg)
}

func InvalidArg(msg string) error {
	return New(CodeInvalidArgument, msg)
}

func AlreadyResolved(msg string) error {
	return New(CodeAlreadyResolved, msg)
}

func StoreUnavailable(msg string, cause error) error {
	return Wrap(CodeStoreUnavailable, msg, cause)
}

func PartialWrite(msg string, cause error) error {
	return Wrap(CodePartialWrite, msg, cause)
}

// CodeOf extracts the application error code, or CodeUnknown for
// errors that did not originate here.
func CodeOf(err error) Code {
	var app *AppError
	if stderrors.As(err, &app) {
		return app.Code
	}
	return CodeUnknown
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
