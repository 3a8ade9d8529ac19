package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/user/agentlink/internal/state"
	"github.com/user/agentlink/internal/types"
)

// Source is the part of the daemon client used to fetch snapshots.
type Source interface {
	ListSessions(ctx context.Context) ([]types.Session, error)
	GetMessages(ctx context.Context, id types.SessionID) ([]types.Message, error)
	ListPermissions(ctx context.Context) ([]types.PermissionRequest, error)
	ListQuestions(ctx context.Context) ([]types.QuestionRequest, error)
}

// Resyncer reseeds the Store from request/response snapshots. It covers
// events missed while the event stream was down.
type Resyncer struct {
	mu      sync.Mutex
	source  Source
	applier *state.Applier
	logger  *slog.Logger
}

func NewResyncer(source Source, applier *state.Applier, logger *slog.Logger) *Resyncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resyncer{source: source, applier: applier, logger: logger}
}

// Resync fetches sessions, pending permissions, pending questions and the
// active session's messages concurrently. Nothing is applied unless every
// fetch succeeds. Changes the event stream delivers while the fetch is in
// flight take precedence over the snapshot. Calls are serialized.
func (r *Resyncer) Resync(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	since := r.applier.Revision()
	active := r.applier.Store().ActiveSession()

	var (
		sessions    []types.Session
		permissions []types.PermissionRequest
		questions   []types.QuestionRequest
		messages    []types.Message
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if sessions, err = r.source.ListSessions(gctx); err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if permissions, err = r.source.ListPermissions(gctx); err != nil {
			return fmt.Errorf("list permissions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if questions, err = r.source.ListQuestions(gctx); err != nil {
			return fmt.Errorf("list questions: %w", err)
		}
		return nil
	})
	if active != "" {
		g.Go(func() error {
			var err error
			if messages, err = r.source.GetMessages(gctx, active); err != nil {
				return fmt.Errorf("get messages: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	r.applier.SeedSessions(since, sessions)
	r.applier.SeedPermissions(since, permissions)
	r.applier.SeedQuestions(since, questions)
	if active != "" {
		r.applier.SeedMessages(since, active, messages)
	}
	r.logger.Info("resynced state",
		"sessions", len(sessions),
		"permissions", len(permissions),
		"questions", len(questions),
		"messages", len(messages))
	return nil
}

// Job adapts Resync for the Scheduler and the supervisor's connect hook,
// logging failures instead of returning them.
func (r *Resyncer) Job() Job {
	return func(ctx context.Context) {
		if err := r.Resync(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("resync failed", "error", err)
		}
	}
}
