package pushstream

import (
	"errors"
	"strconv"
	"strings"
)

// ErrNilObserver is the panic value for constructors given a nil downstream.
var ErrNilObserver = errors.New("pushstream: nil observer")

// CompositeError carries several failures reported as one. Errs keeps the
// order in which the failures were encountered.
type CompositeError struct {
	Errs []error
}

func (e *CompositeError) Error() string {
	var b strings.Builder
	b.WriteString("pushstream: ")
	b.WriteString(strconv.Itoa(len(e.Errs)))
	b.WriteString(" failures: ")
	for i, err := range e.Errs {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap lets errors.Is and errors.As search every member.
func (e *CompositeError) Unwrap() []error {
	return e.Errs
}

// Aggregate merges failures into one. Nil entries are ignored. It returns
// nil when nothing is left, the error itself when exactly one is left, and
// a [*CompositeError] preserving order otherwise.
func Aggregate(errs ...error) error {
	var kept []error
	for _, err := range errs {
		if err != nil {
			kept = append(kept, err)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return &CompositeError{Errs: kept}
	}
}

// Flatten returns every leaf failure in err, descending into
// [*CompositeError] and errors.Join values. Returns nil if err is nil.
func Flatten(err error) []error {
	if err == nil {
		return nil
	}

	var out []error
	collectLeaves(err, &out)
	return out
}

func collectLeaves(err error, out *[]error) {
	switch e := err.(type) {
	case *CompositeError:
		for _, sub := range e.Errs {
			collectLeaves(sub, out)
		}

	case interface{ Unwrap() []error }:
		for _, sub := range e.Unwrap() {
			collectLeaves(sub, out)
		}

	default:
		*out = append(*out, err)
	}
}
