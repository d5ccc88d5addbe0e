// Package stdio provides a line-oriented stdin transport for lifecycle events.
//
// Each input line is one command:
//
//	start   - start or resume a session
//	end     - end the active session
//	status  - print the tracker state as one JSON line
//
// Blank lines and lines starting with '#' are ignored. Commands are
// case-insensitive.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Sentinel-Gate/sessiontrack/internal/port/inbound"
)

// maxLineSize bounds a single input line.
const maxLineSize = 64 * 1024

// statusTimeout bounds how long a status command waits for the worker.
const statusTimeout = 5 * time.Second

// StatusLine is the JSON written for a status command.
type StatusLine struct {
	Current  string `json:"current,omitempty"`
	Previous string `json:"previous,omitempty"`
	Pending  int    `json:"pending"`
}

// errorLine is the JSON written for a command that could not be handled.
type errorLine struct {
	Error string `json:"error"`
}

// StdioTransport reads lifecycle commands from an input stream.
// It implements the inbound.Transport interface.
type StdioTransport struct {
	lifecycle inbound.SessionLifecycle
	in        io.Reader
	out       io.Writer
	logger    *slog.Logger

	outMu sync.Mutex
}

// Option configures StdioTransport.
type Option func(*StdioTransport)

// WithIO replaces os.Stdin and os.Stdout.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(t *StdioTransport) {
		t.in = in
		t.out = out
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *StdioTransport) {
		t.logger = logger
	}
}

// NewStdioTransport creates a stdio transport feeding lifecycle.
func NewStdioTransport(lifecycle inbound.SessionLifecycle, opts ...Option) *StdioTransport {
	t := &StdioTransport{
		lifecycle: lifecycle,
		in:        os.Stdin,
		out:       os.Stdout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start reads commands until the input ends or the context is cancelled.
// Reaching end of input is a graceful shutdown and returns nil.
func (t *StdioTransport) Start(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		scanner := bufio.NewScanner(t.in)
		scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			t.logger.Debug("stdio transport stopped", "reason", ctx.Err())
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			t.logger.Debug("stdio input closed")
			return nil
		case line := <-lines:
			t.handleLine(ctx, line)
		}
	}
}

func (t *StdioTransport) handleLine(ctx context.Context, line string) {
	cmd := strings.ToLower(strings.TrimSpace(line))
	if cmd == "" || strings.HasPrefix(cmd, "#") {
		return
	}

	switch cmd {
	case "start":
		t.lifecycle.StartSession()
	case "end":
		t.lifecycle.EndSession()
	case "status":
		t.writeStatus(ctx)
	default:
		t.logger.Warn("unknown stdio command", "command", cmd)
		t.writeLine(errorLine{Error: fmt.Sprintf("unknown command %q", cmd)})
	}
}

func (t *StdioTransport) writeStatus(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	st, err := t.lifecycle.Status(ctx)
	if err != nil {
		t.writeLine(errorLine{Error: err.Error()})
		return
	}

	line := StatusLine{Pending: st.Pending}
	if st.Current != nil {
		line.Current = st.Current.ID
	}
	if st.Previous != nil {
		line.Previous = st.Previous.ID
	}
	t.writeLine(line)
}

func (t *StdioTransport) writeLine(v any) {
	t.outMu.Lock()
	defer t.outMu.Unlock()
	if err := json.NewEncoder(t.out).Encode(v); err != nil {
		t.logger.Warn("failed to write stdio response", "error", err)
	}
}

// Close gracefully shuts down the transport.
// For stdio, there are no resources to clean up.
func (t *StdioTransport) Close() error {
	return nil
}

// Compile-time check that StdioTransport implements Transport interface.
var _ inbound.Transport = (*StdioTransport)(nil)
