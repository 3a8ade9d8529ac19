// Package generation drives one message-generation stream at a time: it
// posts the user's message, folds the streamed reply into the state
// applier and commits the final message.
package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/semaphore"

	"github.com/user/agentlink/internal/state"
	"github.com/user/agentlink/internal/transport"
	"github.com/user/agentlink/internal/types"
	"github.com/user/agentlink/internal/wire"
)

// ErrIncomplete is returned when the stream ends without done or error.
var ErrIncomplete = errors.New("generation stream ended before completion")

// StreamError is a failure reported by the daemon on the stream itself.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return "generation failed: " + e.Message
}

// Client is the part of the daemon client the Runner needs.
type Client interface {
	SendMessageStream(ctx context.Context, sessionID types.SessionID, req transport.SendMessageRequest) (io.ReadCloser, error)
	AbortMessage(ctx context.Context, sessionID types.SessionID) error
}

// Runner serializes generations: a second Send waits until the first one
// has finished or its context is cancelled.
type Runner struct {
	client  Client
	applier *state.Applier
	sem     *semaphore.Weighted
	logger  *slog.Logger
}

func NewRunner(client Client, applier *state.Applier, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		client:  client,
		applier: applier,
		sem:     semaphore.NewWeighted(1),
		logger:  logger,
	}
}

// Send posts req to a session and consumes the reply stream. Every decoded
// event is applied to the streaming record and then passed to onEvent,
// which may be nil. On done the final message is committed and returned.
func (r *Runner) Send(ctx context.Context, sessionID types.SessionID, req transport.SendMessageRequest, onEvent func(wire.StreamEvent)) (types.Message, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return types.Message{}, err
	}
	defer r.sem.Release(1)

	streamID := r.applier.StartStreaming(sessionID)
	logger := r.logger.With("session_id", sessionID, "stream_id", streamID)

	body, err := r.client.SendMessageStream(ctx, sessionID, req)
	if err != nil {
		r.applier.ClearStreaming()
		return types.Message{}, fmt.Errorf("send message: %w", err)
	}
	defer body.Close()
	logger.Debug("generation started")

	scanner := wire.NewStreamScanner(body, logger)
	for scanner.Next() {
		ev := scanner.Event()
		r.applier.ApplyStream(ev)
		if onEvent != nil {
			onEvent(ev)
		}

		switch e := ev.(type) {
		case wire.Done:
			r.applier.CommitStreaming(e.Message)
			logger.Debug("generation done", "message_id", e.Message.ID)
			return e.Message, nil
		case wire.StreamError:
			logger.Warn("generation failed", "error", e.Message)
			return types.Message{}, &StreamError{Message: e.Message}
		}
	}

	err = scanner.Err()
	if err == nil {
		err = ErrIncomplete
	} else {
		err = fmt.Errorf("read stream: %w", err)
	}
	r.applier.ApplyStream(wire.StreamError{Message: err.Error()})
	return types.Message{}, err
}

// Abort asks the daemon to stop the generation running in a session. The
// open stream then ends on its own.
func (r *Runner) Abort(ctx context.Context, sessionID types.SessionID) error {
	if err := r.client.AbortMessage(ctx, sessionID); err != nil {
		return fmt.Errorf("abort message: %w", err)
	}
	return nil
}
