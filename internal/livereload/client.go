package livereload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/scriptsmith/internal/clientruntime"
	"github.com/conneroisu/scriptsmith/internal/logging"
)

// ClientState is the connection state of a Client.
type ClientState int32

const (
	StateConnecting ClientState = iota
	StateOpen
	StateReconnecting
	StateClosed
)

func (s ClientState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("ClientState(%d)", int32(s))
	}
}

// Cleanup undoes the side effects of the previously applied code before a
// reload is executed.
type Cleanup interface {
	Cleanup(ctx context.Context) error
}

// CleanupFunc adapts a function to Cleanup.
type CleanupFunc func(ctx context.Context) error

// Cleanup implements Cleanup.
func (f CleanupFunc) Cleanup(ctx context.Context) error { return f(ctx) }

// NoopCleanup is used when nothing registered a cleanup.
type NoopCleanup struct{}

// Cleanup implements Cleanup.
func (NoopCleanup) Cleanup(context.Context) error { return nil }

// Executor applies received reload code.
type Executor interface {
	Execute(ctx context.Context, code string) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, code string) error

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, code string) error { return f(ctx, code) }

// WriterExecutor writes each reload's code to W, newline terminated.
type WriterExecutor struct {
	W  io.Writer
	mu sync.Mutex
}

// Execute implements Executor.
func (e *WriterExecutor) Execute(_ context.Context, code string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := io.WriteString(e.W, code+"\n")
	return err
}

// ClientOptions configure a Client.
type ClientOptions struct {
	URL            string
	ReconnectDelay time.Duration
	Executor       Executor
	Cleanup        Cleanup
	Logger         logging.Logger
	// OnStateChange, when set, is called synchronously on every transition.
	OnStateChange func(ClientState)
}

// Client is a headless live-reload client. It connects, applies every
// reload it receives and reconnects after ReconnectDelay whenever the
// connection is lost, without limit, until closed.
type Client struct {
	url      string
	delay    time.Duration
	executor Executor
	logger   logging.Logger
	onState  func(ClientState)

	state   atomic.Int32
	mu      sync.Mutex
	cleanup Cleanup
	cancel  context.CancelFunc
	closed  bool
	reloads atomic.Int64
}

// NewClient creates a client; it does not connect until Run.
func NewClient(opts ClientOptions) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = clientruntime.ReconnectDelay
	}
	if opts.Cleanup == nil {
		opts.Cleanup = NoopCleanup{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Executor == nil {
		opts.Executor = ExecutorFunc(func(context.Context, string) error { return nil })
	}
	c := &Client{
		url:      opts.URL,
		delay:    opts.ReconnectDelay,
		executor: opts.Executor,
		cleanup:  opts.Cleanup,
		logger:   opts.Logger.WithComponent("client"),
		onState:  opts.OnStateChange,
	}
	c.state.Store(int32(StateConnecting))
	return c
}

// State returns the current connection state.
func (c *Client) State() ClientState {
	return ClientState(c.state.Load())
}

// Reloads returns how many reload payloads have been applied.
func (c *Client) Reloads() int64 {
	return c.reloads.Load()
}

// RegisterCleanup replaces the cleanup run before the next reload.
// Passing nil restores the no-op cleanup.
func (c *Client) RegisterCleanup(cleanup Cleanup) {
	if cleanup == nil {
		cleanup = NoopCleanup{}
	}
	c.mu.Lock()
	c.cleanup = cleanup
	c.mu.Unlock()
}

// Run connects and serves reloads until ctx is done or Close is called.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.setState(StateClosed)
		return nil
	}
	c.cancel = cancel
	c.mu.Unlock()

	timer := time.NewTimer(c.delay)
	timer.Stop()
	defer timer.Stop()

	for {
		c.setState(StateConnecting)
		conn, _, err := websocket.Dial(ctx, c.url, nil)
		if err == nil {
			c.setState(StateOpen)
			c.logger.Info(ctx, "connected", "url", c.url)
			err = c.serve(ctx, conn)
		}
		if ctx.Err() != nil {
			c.setState(StateClosed)
			return nil
		}

		c.setState(StateReconnecting)
		c.logger.Debug(ctx, "connection lost, retrying", "url", c.url, "delay", c.delay.String(), "error", errString(err))

		timer.Reset(c.delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			c.setState(StateClosed)
			return nil
		}
	}
}

// Close stops Run, cancelling a pending reconnect and the open connection.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	defer conn.CloseNow()
	conn.SetReadLimit(-1)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		c.handleMessage(ctx, data)
	}
}

func (c *Client) handleMessage(ctx context.Context, data []byte) {
	var msg Payload
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type != MessageTypeReload {
		c.logger.Debug(ctx, "ignoring message", "bytes", len(data))
		return
	}

	c.runCleanup(ctx)

	if err := c.execute(ctx, msg.Code); err != nil {
		c.logger.Error(ctx, err, "reload failed")
		return
	}
	c.reloads.Add(1)
	c.logger.Info(ctx, "reloaded", "bytes", len(msg.Code))
}

// runCleanup never lets a failing cleanup prevent the reload.
func (c *Client) runCleanup(ctx context.Context) {
	c.mu.Lock()
	cleanup := c.cleanup
	c.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error(ctx, fmt.Errorf("panic: %v", r), "cleanup failed")
		}
	}()
	if err := cleanup.Cleanup(ctx); err != nil {
		c.logger.Error(ctx, err, "cleanup failed")
	}
}

func (c *Client) execute(ctx context.Context, code string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return c.executor.Execute(ctx, code)
}

func (c *Client) setState(s ClientState) {
	if ClientState(c.state.Swap(int32(s))) == s {
		return
	}
	if c.onState != nil {
		c.onState(s)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
