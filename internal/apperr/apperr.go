// Package apperr defines the error kinds shared by the publish and delivery
// paths so that transports can map failures without string matching.
package apperr

import (
	"errors"
	"strings"
)

// Kind classifies an error.
type Kind int

const (
	// KindUnknown is returned by KindOf for untagged errors.
	KindUnknown Kind = iota
	// KindValidation means the request content or key was malformed.
	KindValidation
	// KindConflictWait means a concurrent request with the same key did not
	// settle within the attempt budget.
	KindConflictWait
	// KindTransientStore means the durable store failed; the request may be
	// resubmitted with the same key.
	KindTransientStore
	// KindDelivery means the email collaborator rejected or failed a send.
	KindDelivery
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflictWait:
		return "conflict_wait"
	case KindTransientStore:
		return "transient_store"
	case KindDelivery:
		return "delivery"
	default:
		return "unknown"
	}
}

// Error is a tagged error carrying its kind, the failing operation and the
// underlying cause.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "idempotency.begin".
	Op  string
	Err error

	violations []string
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if len(e.violations) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.violations, "; "))
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Violations returns the validation messages attached to the error.
func (e *Error) Violations() []string {
	return e.violations
}

// Validation returns a KindValidation error listing every violation found.
func Validation(op string, violations ...string) *Error {
	return &Error{
		Kind:       KindValidation,
		Op:         op,
		Err:        errors.New(strings.Join(violations, "; ")),
		violations: violations,
	}
}

// ConflictWait returns a KindConflictWait error.
func ConflictWait(op string, err error) *Error {
	return &Error{Kind: KindConflictWait, Op: op, Err: err}
}

// TransientStore returns a KindTransientStore error.
func TransientStore(op string, err error) *Error {
	return &Error{Kind: KindTransientStore, Op: op, Err: err}
}

// Delivery returns a KindDelivery error.
func Delivery(op string, err error) *Error {
	return &Error{Kind: KindDelivery, Op: op, Err: err}
}

// KindOf returns the kind of the first tagged error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ViolationsOf returns the validation messages in err's chain, if any.
func ViolationsOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.violations
	}
	return nil
}
