// Package errors contains the error helpers used throughout dirsync. Errors
// are wrapped with a short description of the operation that failed, so that
// the final message reads like a trace, e.g. "sync group: select freshest:
// walk /data/a: permission denied".
package errors

import (
	goerrors "errors"
	"fmt"
)

// New returns an error with the given message.
func New(msg string) error {
	return goerrors.New(msg)
}

// Is is a passthrough to the standard library so that callers don't need to
// import both packages.
func Is(err, target error) bool {
	return goerrors.Is(err, target)
}

// As is a passthrough to the standard library.
func As(err error, target interface{}) bool {
	return goerrors.As(err, target)
}

type withContext struct {
	context string
	err     error
}

// WithContext annotates err with a description of what was being done when
// it occurred. A nil err stays nil.
func WithContext(err error, context string) error {
	if err == nil {
		return nil
	}
	return withContext{context: context, err: err}
}

func (err withContext) Error() string {
	return fmt.Sprintf("%s: %s", err.context, err.err)
}

func (err withContext) Unwrap() error {
	return err.err
}

// RootCause strips every layer of context from err and returns the error that
// started the chain.
func RootCause(err error) error {
	for {
		ctxErr, ok := err.(withContext)
		if !ok {
			return err
		}
		err = ctxErr.err
	}
}

// FriendlyError is an error whose message is meant to be shown directly to
// the user, without any of the surrounding context.
type FriendlyError struct {
	msg string
}

// NewFriendlyError formats a FriendlyError.
func NewFriendlyError(format string, args ...interface{}) error {
	return FriendlyError{fmt.Sprintf(format, args...)}
}

func (err FriendlyError) Error() string {
	return err.msg
}

// FriendlyMessage returns the message to print to the user.
func (err FriendlyError) FriendlyMessage() string {
	return err.msg
}

// Friendly is implemented by errors that know how to describe themselves to
// users.
type Friendly interface {
	FriendlyMessage() string
}

// GetFriendlyMessage returns the message that should be shown to the user
// for err. If no error in the chain is Friendly, the full error string is
// returned.
func GetFriendlyMessage(err error) string {
	var friendly Friendly
	if As(err, &friendly) {
		return friendly.FriendlyMessage()
	}
	return err.Error()
}
