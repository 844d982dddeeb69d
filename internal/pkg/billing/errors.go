package billing

import (
	"errors"
	"fmt"
)

// Kind classifies a billing failure for the HTTP layer.
type Kind string

const (
	KindValidation          Kind = "VALIDATION"
	KindNotFound            Kind = "NOT_FOUND"
	KindAuth                Kind = "AUTH"
	KindConfig              Kind = "CONFIG"
	KindEntitlement         Kind = "ENTITLEMENT"
	KindConflict            Kind = "CONFLICT"
	KindGatewayTransient    Kind = "GATEWAY_TRANSIENT"
	KindGatewayFatal        Kind = "GATEWAY_FATAL"
	KindInsufficientCredits Kind = "INSUFFICIENT_CREDITS"
	KindNotApplicable       Kind = "NOT_APPLICABLE"
	KindSignatureInvalid    Kind = "SIGNATURE_INVALID"
	KindInternal            Kind = "INTERNAL"
)

// Error is a classified billing failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindInternal
}

// IsKind reports whether err is a billing error of kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// Message returns the user-facing message of err.
func Message(err error) string {
	var be *Error
	if errors.As(err, &be) {
		return be.Message
	}
	return "internal error"
}
