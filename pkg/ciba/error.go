package ciba

import (
	"errors"
	"fmt"
)

type errorType string

const (
	InvalidRequest       errorType = "invalid_request"
	InvalidClient        errorType = "invalid_client"
	InvalidGrant         errorType = "invalid_grant"
	UnsupportedGrantType errorType = "unsupported_grant_type"
	AuthorizationPending errorType = "authorization_pending"
	SlowDown             errorType = "slow_down"
	ExpiredToken         errorType = "expired_token"
	AccessDenied         errorType = "access_denied"
	ServerError          errorType = "server_error"
)

var (
	ErrInvalidRequest = func() *Error {
		return &Error{
			ErrorType: InvalidRequest,
		}
	}
	ErrInvalidClient = func() *Error {
		return &Error{
			ErrorType: InvalidClient,
		}
	}
	ErrInvalidGrant = func() *Error {
		return &Error{
			ErrorType: InvalidGrant,
		}
	}
	ErrUnsupportedGrantType = func() *Error {
		return &Error{
			ErrorType: UnsupportedGrantType,
		}
	}
	ErrAuthorizationPending = func() *Error {
		return &Error{
			ErrorType: AuthorizationPending,
		}
	}
	ErrSlowDown = func() *Error {
		return &Error{
			ErrorType: SlowDown,
		}
	}
	ErrExpiredToken = func() *Error {
		return &Error{
			ErrorType: ExpiredToken,
		}
	}
	ErrAccessDenied = func() *Error {
		return &Error{
			ErrorType: AccessDenied,
		}
	}
	ErrServerError = func() *Error {
		return &Error{
			ErrorType: ServerError,
		}
	}
)

// Error is the structured protocol error returned on the backchannel
// authentication and token endpoints. The polling error types
// (authorization_pending, slow_down, expired_token, access_denied) are
// expected client-recoverable outcomes, not server defects.
type Error struct {
	Parent      error     `json:"-" schema:"-"`
	ErrorType   errorType `json:"error" schema:"error"`
	Description string    `json:"error_description,omitempty" schema:"error_description,omitempty"`
}

func (e *Error) Error() string {
	message := "ErrorType=" + string(e.ErrorType)
	if e.Description != "" {
		message += " Description=" + e.Description
	}
	if e.Parent != nil {
		message += " Parent=" + e.Parent.Error()
	}
	return message
}

func (e *Error) Unwrap() error {
	return e.Parent
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.ErrorType == t.ErrorType &&
		(e.Description == t.Description || t.Description == "")
}

func (e *Error) WithParent(err error) *Error {
	e.Parent = err
	return e
}

func (e *Error) WithDescription(desc string, args ...any) *Error {
	e.Description = fmt.Sprintf(desc, args...)
	return e
}

// IsPollingOutcome reports whether the error is one of the token endpoint's
// polling results, on which a client is expected to keep or stop polling.
func (e *Error) IsPollingOutcome() bool {
	switch e.ErrorType {
	case AuthorizationPending, SlowDown, ExpiredToken, AccessDenied:
		return true
	}
	return false
}

// DefaultToServerError checks if the error is an Error
// if not the provided error will be wrapped into a ServerError
func DefaultToServerError(err error, description string) *Error {
	ciba := new(Error)
	if ok := errors.As(err, &ciba); !ok {
		ciba.ErrorType = ServerError
		ciba.Description = description
		ciba.Parent = err
	}
	return ciba
}
