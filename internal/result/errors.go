package result

import (
	"errors"
	"fmt"
	"strings"
)

// Failure kinds. Match them with errors.Is.
var (
	ErrUnresolvedVariable  = errors.New("unresolved variable")
	ErrMemberNotFound      = errors.New("member not found")
	ErrNotAccessible       = errors.New("member not accessible")
	ErrNoCallSucceeded     = errors.New("no call succeeded")
	ErrNoParameterVariants = errors.New("no parameter variants")
	ErrLoopedEvaluation    = errors.New("looped evaluation")
	ErrIllegalInvocation   = errors.New("illegal invocation")
	ErrBadEval             = errors.New("bad evaluation")
)

// Error is a classified evaluation failure.
type Error struct {
	Kind   error
	Result ID
	Msg    string
	Causes []error
}

// Errorf returns a failure of the given kind for the result id.
func Errorf(kind error, id ID, format string, args ...any) *Error {
	return &Error{Kind: kind, Result: id, Msg: fmt.Sprintf(format, args...)}
}

// Aggregate returns a failure of the given kind carrying causes. Nil causes
// are dropped.
func Aggregate(kind error, id ID, msg string, causes []error) *Error {
	e := &Error{Kind: kind, Result: id, Msg: msg}
	for _, c := range causes {
		if c != nil {
			e.Causes = append(e.Causes, c)
		}
	}
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	switch len(e.Causes) {
	case 0:
	case 1:
		b.WriteString(" (caused by: ")
		b.WriteString(e.Causes[0].Error())
		b.WriteString(")")
	default:
		fmt.Fprintf(&b, " (%d causes, first: %s)", len(e.Causes), e.Causes[0])
	}
	return b.String()
}

// Is matches the failure kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Unwrap exposes the causes.
func (e *Error) Unwrap() []error {
	return e.Causes
}

// KindOf returns the failure kind of err, or nil when err is not classified.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}

// IsFatal reports whether err aborts evaluation outright. Only looped
// evaluation is fatal, wherever it appears in the cause chain.
func IsFatal(err error) bool {
	return errors.Is(err, ErrLoopedEvaluation)
}

// Join aggregates several failures under one kind, flattening a single cause.
func Join(kind error, id ID, msg string, errs []error) error {
	var causes []error
	for _, err := range errs {
		if err != nil {
			causes = append(causes, err)
		}
	}
	if len(causes) == 0 {
		return nil
	}
	return Aggregate(kind, id, msg, causes)
}
