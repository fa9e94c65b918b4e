package auth

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidCredentials    = errors.New("invalid username or password")
	ErrAlreadyExists         = errors.New("user already exists")
	ErrEmailTaken            = fmt.Errorf("%w: email is registered to another account", ErrAlreadyExists)
	ErrNotFound              = errors.New("user not found")
	ErrTokenInvalidOrExpired = errors.New("password reset token is invalid or has expired")
	ErrTokenInvalid          = errors.New("invalid session token")
	ErrTokenExpired          = errors.New("session token has expired")
	ErrForbidden             = errors.New("not allowed to act on this account")
	ErrStorage               = errors.New("storage failure")
	ErrDelivery              = errors.New("mail delivery failure")
)

// Violation is one failed input rule.
type Violation struct {
	Param    string `json:"param"`
	Msg      string `json:"msg"`
	Value    string `json:"value"`
	Location string `json:"location"`
}

// ValidationError carries every rule the input broke, not just the first.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Msg
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
