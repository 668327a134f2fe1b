// Package transports defines the line-oriented boundary between a user and a
// chat session. Implementations own their own I/O lifecycle.
package transports

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrSessionBusy is reported when a second client tries to join while
	// one is already connected.
	ErrSessionBusy = errors.New("session busy")
	ErrClosed      = errors.New("transport closed")
)

// LineTransport delivers user lines and presents assistant replies.
// ReadLine returns io.EOF once no more input will arrive.
type LineTransport interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	ReadLine(ctx context.Context) (string, error)
	WriteReply(text string) error
}

// ReadyReporter allows transports to expose readiness metadata (e.g. listen
// addresses). Implementations are optional and used for informational
// logging only.
type ReadyReporter interface {
	ReadyFields() map[string]any
}

// TrimLine drops the line terminator and nothing else.
func TrimLine(s string) string {
	return strings.TrimRight(s, "\r\n")
}
