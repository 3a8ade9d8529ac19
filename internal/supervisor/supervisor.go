// Package supervisor keeps the daemon event stream connected. It opens the
// stream, feeds decoded events to the state applier and reconnects with
// exponential backoff whenever the stream fails, ends or goes idle.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/user/agentlink/internal/wire"
)

// State is the position of the Supervisor in its connection lifecycle.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateBackoffWait
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateBackoffWait:
		return "backoff"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrIdleTimeout is reported when no bytes arrived on the stream within the
// idle timeout.
var ErrIdleTimeout = errors.New("event stream idle timeout")

// ErrHandshakeTimeout is reported when the daemon accepted the connection
// but did not answer the subscribe request in time.
var ErrHandshakeTimeout = errors.New("event stream handshake timeout")

var errStreamEnded = errors.New("event stream ended")

// Subscriber opens one daemon event stream per call.
type Subscriber interface {
	Subscribe(ctx context.Context) (io.ReadCloser, error)
}

// Applier receives decoded events and connectivity changes.
type Applier interface {
	Apply(ev wire.DaemonEvent)
	SetConnected(connected bool)
}

// Options configure a Supervisor. The zero value uses DefaultPolicy, no
// idle timeout and slog.Default.
type Options struct {
	Policy Policy
	// IdleTimeout forces a reconnect when no bytes, keepalives included,
	// arrive for this long. Zero disables it.
	IdleTimeout time.Duration
	// HandshakeTimeout bounds each Subscribe call. Zero falls back to
	// IdleTimeout; both zero leaves the handshake unbounded.
	HandshakeTimeout time.Duration
	Logger           *slog.Logger
	// OnConnect runs in its own goroutine after every successful
	// handshake. Its context is cancelled when the stream ends.
	OnConnect func(ctx context.Context)
	// OnStateChange observes every transition.
	OnStateChange func(State)
	// Sleep waits between attempts. It must return early with ctx.Err()
	// on cancellation.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Supervisor runs the reconnect loop. It has no terminal state other than
// cancellation of the context passed to Run.
type Supervisor struct {
	sub     Subscriber
	applier Applier
	opts    Options
	logger  *slog.Logger
	state   atomic.Int32
}

// New creates a Supervisor streaming from sub into applier.
func New(sub Subscriber, applier Applier, opts Options) *Supervisor {
	opts.Policy = opts.Policy.normalize()
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{sub: sub, applier: applier, opts: opts, logger: logger}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

func (s *Supervisor) setState(st State) {
	if State(s.state.Swap(int32(st))) == st {
		return
	}
	s.logger.Debug("supervisor state", "state", st.String())
	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(st)
	}
}

// Run connects and reconnects until ctx is cancelled, then returns
// ctx.Err(). Failures are logged and retried, never returned.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.setState(StateIdle)

	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.setState(StateConnecting)
		connected, err := s.stream(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if connected {
			failures = 0
		}
		failures++
		delay := s.opts.Policy.NextDelay(failures)

		if connected {
			s.logger.Warn("event stream disconnected", "error", err, "retry_in", delay)
		} else {
			s.logger.Warn("event stream connect failed", "error", err, "attempt", failures, "retry_in", delay)
		}

		s.setState(StateBackoffWait)
		if err := s.opts.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// stream performs one connection attempt. It reports whether the
// handshake succeeded and why the attempt ended.
func (s *Supervisor) stream(ctx context.Context) (bool, error) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	body, err := s.subscribe(connCtx, cancel)
	if err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}
	defer body.Close()
	stop := context.AfterFunc(connCtx, func() { body.Close() })
	defer stop()

	s.setState(StateStreaming)
	s.applier.SetConnected(true)
	defer s.applier.SetConnected(false)
	s.logger.Info("event stream connected")

	if s.opts.OnConnect != nil {
		go s.opts.OnConnect(connCtx)
	}

	var r io.Reader = body
	var idle *idleReader
	if s.opts.IdleTimeout > 0 {
		idle = newIdleReader(body, s.opts.IdleTimeout, cancel)
		defer idle.stop()
		r = idle
	}

	scanner := wire.NewDaemonScanner(r, s.logger)
	for scanner.Next() {
		s.applier.Apply(scanner.Event())
	}

	if idle != nil && idle.expired() {
		return true, ErrIdleTimeout
	}
	if err := scanner.Err(); err != nil {
		return true, fmt.Errorf("read stream: %w", err)
	}
	return true, errStreamEnded
}

// subscribe opens the stream, cancelling the attempt when the handshake
// outlives the handshake timeout.
func (s *Supervisor) subscribe(ctx context.Context, cancel context.CancelFunc) (io.ReadCloser, error) {
	timeout := s.opts.HandshakeTimeout
	if timeout == 0 {
		timeout = s.opts.IdleTimeout
	}
	if timeout <= 0 {
		return s.sub.Subscribe(ctx)
	}

	var expired atomic.Bool
	timer := time.AfterFunc(timeout, func() {
		expired.Store(true)
		cancel()
	})
	body, err := s.sub.Subscribe(ctx)
	timer.Stop()

	if expired.Load() {
		if body != nil {
			body.Close()
		}
		return nil, ErrHandshakeTimeout
	}
	return body, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
