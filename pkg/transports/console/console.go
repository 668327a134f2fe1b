// Package console reads user lines from a terminal and prints replies.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/harunnryd/hearth/pkg/transports"
)

type Config struct {
	Prompt      string `mapstructure:"prompt"`
	ReplyPrefix string `mapstructure:"reply_prefix"`
}

func (c Config) withDefaults() Config {
	if c.Prompt == "" {
		c.Prompt = "User > "
	}
	if c.ReplyPrefix == "" {
		c.ReplyPrefix = "Assistant > "
	}
	return c
}

type line struct {
	text string
	err  error
}

// Transport prompts on out and reads one line at a time from in. Reading
// happens on a background goroutine so ReadLine can honor cancellation.
type Transport struct {
	cfg   Config
	in    io.Reader
	out   io.Writer
	lines chan line
	done  chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	writeMu   sync.Mutex
}

// New uses stdin and stdout when in or out is nil.
func New(cfg Config, in io.Reader, out io.Writer) *Transport {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return &Transport{
		cfg:   cfg.withDefaults(),
		in:    in,
		out:   out,
		lines: make(chan line),
		done:  make(chan struct{}),
	}
}

func (t *Transport) Name() string { return "console" }

func (t *Transport) Start(ctx context.Context) error {
	t.startOnce.Do(t.startReader)
	return nil
}

func (t *Transport) Stop() error {
	t.stopOnce.Do(func() { close(t.done) })
	return nil
}

func (t *Transport) startReader() {
	go func() {
		defer close(t.lines)
		scanner := bufio.NewScanner(t.in)
		scanner.Buffer(make([]byte, 0, 4096), 1<<20)
		for scanner.Scan() {
			select {
			case t.lines <- line{text: transports.TrimLine(scanner.Text())}:
			case <-t.done:
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case t.lines <- line{err: err}:
			case <-t.done:
			}
		}
	}()
}

// ReadLine prints the prompt and waits for the next line.
func (t *Transport) ReadLine(ctx context.Context) (string, error) {
	t.startOnce.Do(t.startReader)
	if err := t.write(t.cfg.Prompt); err != nil {
		return "", err
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-t.done:
		return "", io.EOF
	case l, ok := <-t.lines:
		if !ok {
			_ = t.write("\n")
			return "", io.EOF
		}
		return l.text, l.err
	}
}

func (t *Transport) WriteReply(text string) error {
	return t.write(t.cfg.ReplyPrefix + text + "\n")
}

func (t *Transport) write(s string) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := io.WriteString(t.out, s); err != nil {
		return fmt.Errorf("console write: %w", err)
	}
	return nil
}

var _ transports.LineTransport = (*Transport)(nil)
