package mock

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/harunnryd/hearth/pkg/transports"
)

// Transport is an in-memory line transport for local testing and
// integration. Queued lines are served in order; once they run out and the
// input is closed, ReadLine returns io.EOF.
type Transport struct {
	lines   chan string
	replyCh chan string
	closed  atomic.Bool

	mu      sync.Mutex
	replies []string
}

// New preloads lines and closes the input after them.
func New(lines ...string) *Transport {
	t := Open(len(lines))
	for _, l := range lines {
		t.lines <- l
	}
	t.CloseInput()
	return t
}

// Open returns a transport whose input stays open until CloseInput or Stop.
func Open(buffer int) *Transport {
	if buffer < 16 {
		buffer = 16
	}
	return &Transport{
		lines:   make(chan string, buffer),
		replyCh: make(chan string, 256),
	}
}

func (t *Transport) Name() string { return "mock" }

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		<-ctx.Done()
		_ = t.Stop()
	}()
	return nil
}

func (t *Transport) Stop() error {
	t.CloseInput()
	return nil
}

// Push queues a user line. It reports false when the input is closed or the
// buffer is full.
func (t *Transport) Push(line string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		return false
	}
	select {
	case t.lines <- line:
		return true
	default:
		return false
	}
}

func (t *Transport) CloseInput() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.CompareAndSwap(false, true) {
		close(t.lines)
	}
}

func (t *Transport) ReadLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case l, ok := <-t.lines:
		if !ok {
			return "", io.EOF
		}
		return l, nil
	}
}

func (t *Transport) WriteReply(text string) error {
	t.mu.Lock()
	t.replies = append(t.replies, text)
	t.mu.Unlock()
	select {
	case t.replyCh <- text:
	default:
	}
	return nil
}

// Replies returns every reply written so far.
func (t *Transport) Replies() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.replies...)
}

// NextReply waits for the next reply.
func (t *Transport) NextReply(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-t.replyCh:
		return r, nil
	}
}

var _ transports.LineTransport = (*Transport)(nil)
