package billing

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Kind classifies a failure so transports can map it to a status code.
type Kind int

const (
	KindTransient Kind = iota
	KindAuthentication
	KindValidation
	KindNotFound
	KindInvalidState
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication_failure"
	case KindValidation:
		return "validation_failure"
	case KindNotFound:
		return "not_found"
	case KindInvalidState:
		return "invalid_state"
	default:
		return "transient_failure"
	}
}

var (
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrStaleTimestamp       = errors.New("webhook timestamp outside tolerance")
	ErrMalformedEvent       = errors.New("malformed event payload")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrCustomerNotFound     = errors.New("no billing customer for account")
	ErrAccountNotFound      = errors.New("account not found")
	ErrInvalidState         = errors.New("invalid subscription state")
	ErrNotConfigured        = errors.New("billing provider not configured")
	ErrEmailTaken           = errors.New("email already registered")
)

// Error is the tagged error returned by the billing engine.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// KindOf extracts the Kind of err. Untagged errors are transient.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

// Message returns the human readable part of a tagged error.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Msg != "" {
			return e.Msg
		}
		if e.Err != nil {
			return e.Err.Error()
		}
	}
	return "internal error"
}

// storeError classifies a storage error.
func storeError(op string, err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if notFound == nil {
			notFound = err
		}
		return newError(KindNotFound, op, notFound, "")
	}
	return newError(KindTransient, op, err, "storage unavailable")
}
