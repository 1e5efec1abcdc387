package services

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
)

// notFound wraps gorm's missing-row error with a domain message and passes
// anything else through.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Error{Kind: ErrNotFound, Msg: what + " not found"}
	}
	return err
}

// Error pairs a sentinel kind with a user-facing message.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}
