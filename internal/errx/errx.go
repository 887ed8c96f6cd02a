// Package errx provides small helpers for wrapping sentinel errors with
// additional host-error or formatted context without losing errors.Is
// comparability against the sentinel.
package errx

import "fmt"

// Wrap annotates sentinel with cause, preserving errors.Is(result, sentinel).
func Wrap(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return &wrapped{sentinel: sentinel, msg: fmt.Sprintf("%s: %s", sentinel.Error(), cause.Error()), cause: cause}
}

// With annotates sentinel with a formatted suffix, preserving errors.Is.
func With(sentinel error, format string, args ...interface{}) error {
	return &wrapped{sentinel: sentinel, msg: sentinel.Error() + fmt.Sprintf(format, args...)}
}

type wrapped struct {
	sentinel error
	msg      string
	cause    error
}

func (w *wrapped) Error() string { return w.msg }

func (w *wrapped) Unwrap() error {
	if w.cause != nil {
		return w.cause
	}
	return w.sentinel
}

func (w *wrapped) Is(target error) bool {
	return target == w.sentinel
}
