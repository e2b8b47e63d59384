package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure so callers can choose how to surface it.
type Kind int

const (
	// KindNetwork covers transport failures, timeouts and server-side errors. It is the generic, retryable class.
	KindNetwork Kind = iota + 1
	// KindUnauthorized means the bearer credential was missing or rejected.
	KindUnauthorized
	// KindValidation means the request payload was rejected.
	KindValidation
	// KindNotFound means the requested resource does not exist for the caller.
	KindNotFound
)

var (
	// ErrNetwork is matched by every KindNetwork error.
	ErrNetwork = errors.New("network failure")
	// ErrUnauthorized is matched by every KindUnauthorized error.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrValidation is matched by every KindValidation error.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is matched by every KindNotFound error.
	ErrNotFound = errors.New("not found")
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	default:
		return "none"
	}
}

// Sentinel returns the package-level error value for the kind.
func (k Kind) Sentinel() error {
	switch k {
	case KindUnauthorized:
		return ErrUnauthorized
	case KindValidation:
		return ErrValidation
	case KindNotFound:
		return ErrNotFound
	default:
		return ErrNetwork
	}
}

// Error is the typed failure returned by the activity client and draft validation.
type Error struct {
	Kind   Kind
	Op     string
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Sentinel().Error())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the underlying cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	errs := []error{e.Kind.Sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// KindOf classifies err. Errors outside the taxonomy are treated as KindNetwork; nil yields the zero Kind.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrValidation):
		return KindValidation
	default:
		return KindNetwork
	}
}
