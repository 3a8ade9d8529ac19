package supervisor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/user/agentlink/internal/transport"
	"github.com/user/agentlink/internal/wire"
)

// stubSubscriber serves the scripted result for each attempt in turn.
type stubSubscriber struct {
	mu       sync.Mutex
	attempts int
	connect  func(attempt int) (io.ReadCloser, error)
}

func (s *stubSubscriber) Subscribe(ctx context.Context) (io.ReadCloser, error) {
	s.mu.Lock()
	s.attempts++
	n := s.attempts
	s.mu.Unlock()
	return s.connect(n)
}

func (s *stubSubscriber) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// recordingApplier records applied events and connectivity changes along
// with the attempt number they happened on.
type recordingApplier struct {
	mu        sync.Mutex
	sub       *stubSubscriber
	events    []wire.DaemonEvent
	connected []connChange
	onConnect func()
}

type connChange struct {
	value   bool
	attempt int
}

func (r *recordingApplier) Apply(ev wire.DaemonEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingApplier) SetConnected(v bool) {
	r.mu.Lock()
	r.connected = append(r.connected, connChange{value: v, attempt: r.sub.count()})
	hook := r.onConnect
	r.mu.Unlock()
	if v && hook != nil {
		hook()
	}
}

func (r *recordingApplier) changes() []connChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]connChange(nil), r.connected...)
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func TestSupervisorBackoffUntilConnected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	floor := 50 * time.Millisecond
	pr, pw := io.Pipe()
	defer pw.Close()

	sub := &stubSubscriber{connect: func(attempt int) (io.ReadCloser, error) {
		if attempt <= 3 {
			return nil, errors.New("connection refused")
		}
		return pr, nil
	}}
	applier := &recordingApplier{sub: sub, onConnect: cancel}
	sleeps := &sleepRecorder{}

	var states []State
	var statesMu sync.Mutex
	sup := New(sub, applier, Options{
		Policy: Policy{InitialDelay: floor, Multiplier: 2, MaxDelay: time.Second},
		Sleep:  sleeps.sleep,
		OnStateChange: func(s State) {
			statesMu.Lock()
			states = append(states, s)
			statesMu.Unlock()
		},
	})

	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop after cancellation")
	}

	want := []time.Duration{floor, 2 * floor, 4 * floor}
	got := sleeps.recorded()
	if len(got) != len(want) {
		t.Fatalf("expected delays %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delay %d: expected %v, got %v", i, want[i], got[i])
		}
	}

	changes := applier.changes()
	if len(changes) == 0 || !changes[0].value || changes[0].attempt != 4 {
		t.Fatalf("expected first connectivity change to be true on attempt 4, got %#v", changes)
	}
	if last := changes[len(changes)-1]; last.value {
		t.Errorf("expected connectivity false after the stream ended, got %#v", changes)
	}

	statesMu.Lock()
	defer statesMu.Unlock()
	wantStates := []State{
		StateConnecting, StateBackoffWait,
		StateConnecting, StateBackoffWait,
		StateConnecting, StateBackoffWait,
		StateConnecting, StateStreaming, StateIdle,
	}
	if len(states) != len(wantStates) {
		t.Fatalf("expected states %v, got %v", wantStates, states)
	}
	for i := range wantStates {
		if states[i] != wantStates[i] {
			t.Errorf("state %d: expected %v, got %v", i, wantStates[i], states[i])
		}
	}
}

func TestSupervisorAppliesEventsAndResetsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := "event: connection.status\ndata: {\"connected\":true}\n\n" +
		"event: keepalive\ndata: {}\n\n" +
		"event: session.deleted\ndata: {\"info\":{\"id\":\"s1\"}}\n\n"

	sub := &stubSubscriber{connect: func(attempt int) (io.ReadCloser, error) {
		switch attempt {
		case 1:
			return nil, errors.New("connection refused")
		case 2:
			return io.NopCloser(strings.NewReader(stream)), nil
		default:
			cancel()
			return nil, context.Canceled
		}
	}}
	applier := &recordingApplier{sub: sub}
	sleeps := &sleepRecorder{}
	sup := New(sub, applier, Options{
		Policy: Policy{InitialDelay: 10 * time.Millisecond, Multiplier: 2, MaxDelay: time.Second},
		Sleep:  sleeps.sleep,
	})

	if err := sup.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if len(applier.events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(applier.events))
	}
	if _, ok := applier.events[2].(wire.SessionDeleted); !ok {
		t.Errorf("expected events in wire order, got %T last", applier.events[2])
	}

	got := sleeps.recorded()
	want := []time.Duration{10 * time.Millisecond, 10 * time.Millisecond}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("expected backoff reset after connecting %v, got %v", want, got)
	}

	changes := applier.changes()
	if len(changes) != 2 || !changes[0].value || changes[1].value {
		t.Errorf("expected connectivity true then false, got %#v", changes)
	}
}

func TestSupervisorIdleTimeoutForcesReconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	silent, silentW := io.Pipe()
	defer silentW.Close()

	sub := &stubSubscriber{connect: func(attempt int) (io.ReadCloser, error) {
		if attempt == 1 {
			return silent, nil
		}
		cancel()
		return nil, context.Canceled
	}}
	applier := &recordingApplier{sub: sub}
	sleeps := &sleepRecorder{}
	sup := New(sub, applier, Options{
		IdleTimeout: 30 * time.Millisecond,
		Sleep:       sleeps.sleep,
	})

	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("idle stream was never torn down")
	}

	if sub.count() != 2 {
		t.Errorf("expected a reconnect attempt after idle timeout, got %d attempts", sub.count())
	}
	if got := sleeps.recorded(); len(got) != 1 || got[0] != DefaultPolicy().InitialDelay {
		t.Errorf("expected one floor delay, got %v", got)
	}
}

func TestSupervisorKeepaliveDefersIdleTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pr, pw := io.Pipe()
	sub := &stubSubscriber{connect: func(attempt int) (io.ReadCloser, error) {
		if attempt == 1 {
			return pr, nil
		}
		cancel()
		return nil, context.Canceled
	}}
	applier := &recordingApplier{sub: sub}
	sup := New(sub, applier, Options{
		IdleTimeout: 100 * time.Millisecond,
		Sleep:       (&sleepRecorder{}).sleep,
	})

	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	// Heartbeats every 20ms keep the stream alive well past the timeout.
	for i := 0; i < 15; i++ {
		if _, err := pw.Write([]byte("event: keepalive\ndata: {}\n\n")); err != nil {
			t.Fatalf("stream closed early on heartbeat %d: %v", i, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if sub.count() != 1 {
		t.Errorf("expected no reconnect while heartbeats flow, got %d attempts", sub.count())
	}

	pw.Close()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop")
	}
}

func TestSupervisorCancelDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	sub := &stubSubscriber{connect: func(int) (io.ReadCloser, error) {
		return nil, errors.New("connection refused")
	}}
	sup := New(sub, &recordingApplier{sub: sub}, Options{
		Policy: Policy{InitialDelay: time.Hour, Multiplier: 2, MaxDelay: time.Hour},
	})

	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancellation did not interrupt the backoff sleep")
	}
	if sup.State() != StateIdle {
		t.Errorf("expected idle after Run returned, got %v", sup.State())
	}
}

func TestSupervisorHandshakeTimeoutBacksOff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Accept the connection but never send headers.
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	client := transport.New(transport.Config{BaseURL: server.URL})
	applier := &recordingApplier{sub: &stubSubscriber{}}

	var mu sync.Mutex
	var states []State
	sup := New(client, applier, Options{
		IdleTimeout: 50 * time.Millisecond,
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
		OnStateChange: func(s State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	})

	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("supervisor stuck in %v with a hung handshake", sup.State())
	}

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateConnecting, StateBackoffWait, StateIdle}
	if len(states) != len(want) {
		t.Fatalf("expected states %v, got %v", want, states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("state %d: expected %v, got %v", i, want[i], states[i])
		}
	}
	if len(applier.changes()) != 0 {
		t.Errorf("expected no connectivity change, got %#v", applier.changes())
	}
}
