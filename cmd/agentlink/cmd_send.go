package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/agentlink/internal/generation"
	"github.com/user/agentlink/internal/state"
	"github.com/user/agentlink/internal/transport"
	"github.com/user/agentlink/internal/wire"
)

var (
	sendAgent     string
	sendModel     string
	sendReasoning bool
)

func init() {
	sendCmd.Flags().StringVar(&sendAgent, "agent", "", "agent to answer with")
	sendCmd.Flags().StringVar(&sendModel, "model", "", "model override")
	sendCmd.Flags().BoolVar(&sendReasoning, "reasoning", false, "print reasoning deltas to stderr")
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <session-id> <text>...",
	Short: "Send a message and stream the reply",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		client := newClient(cfg)
		applier := state.NewApplier(state.NewStore(), slog.Default())
		runner := generation.NewRunner(client, applier, slog.Default())

		ctx, stop := signalContext()
		defer stop()

		sessionID := args[0]
		req := transport.SendMessageRequest{
			Content: strings.Join(args[1:], " "),
			Agent:   sendAgent,
			Model:   sendModel,
		}

		msg, err := runner.Send(ctx, sessionID, req, printStreamEvent)
		fmt.Fprintln(os.Stdout)
		if ctx.Err() != nil {
			abortCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := runner.Abort(abortCtx, sessionID); err != nil {
				slog.Warn("abort failed", "session_id", sessionID, "error", err)
			}
			return ctx.Err()
		}
		if err != nil {
			return err
		}
		slog.Debug("reply committed", "message_id", msg.ID)
		return nil
	},
}

func printStreamEvent(ev wire.StreamEvent) {
	switch e := ev.(type) {
	case wire.Content:
		fmt.Fprint(os.Stdout, e.Text)
	case wire.Reasoning:
		if sendReasoning {
			fmt.Fprint(os.Stderr, e.Text)
		}
	case wire.ToolCallStart:
		fmt.Fprintf(os.Stderr, "\n[tool %s %s]\n", e.Call.Name, e.Call.ID)
	case wire.ToolCallEnd:
		status := "ok"
		if e.Result.IsError {
			status = "error"
		}
		fmt.Fprintf(os.Stderr, "[tool %s %s]\n", e.Result.ID, status)
	case wire.StreamError:
		fmt.Fprintf(os.Stderr, "\nerror: %s\n", e.Message)
	case wire.Done:
	}
}
