package errorsx

import (
	"errors"
	"fmt"
)

// ReasonedError carries a ReasonCode alongside the underlying error. The
// message is the cause's message; the reason is for logs and metrics.
type ReasonedError struct {
	Err    error
	Reason ReasonCode
}

func (e ReasonedError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return e.Err.Error()
}

func (e ReasonedError) Unwrap() error { return e.Err }

// Wrap tags err with reason. The innermost reason wins: an error that already
// carries one is returned unchanged.
func Wrap(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	if _, tagged := find(err); tagged {
		return err
	}
	return ReasonedError{Err: err, Reason: reason}
}

// Wrapf tags err with reason and prefixes it with a formatted context string.
func Wrapf(err error, reason ReasonCode, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), Wrap(err, reason))
}

// Reason returns the reason attached anywhere in err's chain.
func Reason(err error) ReasonCode {
	if re, ok := find(err); ok {
		return re.Reason
	}
	return ReasonUnknown
}

func HasReason(err error, reason ReasonCode) bool {
	return Reason(err) == reason
}

func find(err error) (ReasonedError, bool) {
	var re ReasonedError
	if err == nil || !errors.As(err, &re) {
		return ReasonedError{}, false
	}
	return re, true
}
