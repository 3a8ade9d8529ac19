package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/user/agentlink/internal/scheduler"
	"github.com/user/agentlink/internal/state"
	"github.com/user/agentlink/internal/supervisor"
	"github.com/user/agentlink/internal/wire"
)

var watchSession string

func init() {
	watchCmd.Flags().StringVar(&watchSession, "session", "", "keep this session's messages in sync on every resync")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the daemon event stream and keep local state in sync",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

// loggingApplier logs each event before handing it to the state applier.
type loggingApplier struct {
	*state.Applier
	logger *slog.Logger
}

func (l loggingApplier) Apply(ev wire.DaemonEvent) {
	if _, ok := ev.(wire.Keepalive); !ok {
		l.logger.Info("event", "event", ev.Label())
	}
	l.Applier.Apply(ev)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	client := newClient(cfg)
	logger := slog.Default()

	applier := state.NewApplier(state.NewStore(), logger)
	if watchSession != "" {
		applier.SetActiveSession(watchSession)
	}
	resyncer := scheduler.NewResyncer(client, applier, logger)

	opts := supervisor.Options{
		Policy: supervisor.Policy{
			InitialDelay: cfg.InitialDelay(),
			Multiplier:   cfg.Reconnect.Multiplier,
			MaxDelay:     cfg.MaxDelay(),
		},
		IdleTimeout: cfg.IdleTimeout(),
		Logger:      logger,
	}
	if cfg.Resync.OnConnect {
		opts.OnConnect = resyncer.Job()
	}
	sup := supervisor.New(client, loggingApplier{Applier: applier, logger: logger}, opts)
	sched := scheduler.New(cfg.Resync.Schedule, resyncer.Job(), logger)

	ctx, stop := signalContext()
	defer stop()

	logger.Info("agentlink watching",
		"base_url", client.BaseURL(),
		"directory", cfg.Daemon.Directory,
		"idle_timeout", cfg.IdleTimeout(),
		"resync_schedule", cfg.Resync.Schedule,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sup.Run(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return reportChanges(gctx, applier.Store(), logger) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		logger.Info("shutting down")
		return nil
	}
	return err
}

// reportChanges logs a one-line summary whenever the store changes.
func reportChanges(ctx context.Context, store *state.Store, logger *slog.Logger) error {
	changes, cancel := store.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changes:
			snap := store.Snapshot()
			logger.Debug("state",
				"connected", snap.Connected,
				"sessions", len(snap.Sessions),
				"active_session", snap.ActiveSession,
				"sessions_with_permissions", len(snap.Permissions),
				"sessions_with_questions", len(snap.Questions),
			)
		}
	}
}
