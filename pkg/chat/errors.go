package chat

import (
	"errors"
	"fmt"

	"github.com/harunnryd/hearth/pkg/errorsx"
	"github.com/harunnryd/hearth/pkg/resilience"
)

var (
	ErrModelInvocation    = errors.New("model invocation failed")
	ErrToolRoundsExceeded = errors.New("tool round limit exceeded")
	ErrSessionClosed      = errors.New("session closed")
)

func modelError(err error) error {
	reason := errorsx.ReasonLLMGenerate
	switch {
	case resilience.IsRateLimit(err):
		reason = errorsx.ReasonLLMRateLimit
	case resilience.IsUnavailable(err):
		reason = errorsx.ReasonLLMUnavailable
	}
	return fmt.Errorf("%w: %w", ErrModelInvocation, errorsx.Wrap(err, reason))
}

func roundsError(limit int) error {
	return errorsx.Wrap(fmt.Errorf("%w (%d)", ErrToolRoundsExceeded, limit), errorsx.ReasonToolRoundsLimit)
}
