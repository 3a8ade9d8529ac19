package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/agentlink/internal/transport"
	"github.com/user/agentlink/internal/types"
)

var (
	sessionTitle string
	sessionAgent string
	sessionModel string
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCreateCmd.Flags().StringVar(&sessionTitle, "title", "", "session title")
	sessionCreateCmd.Flags().StringVar(&sessionAgent, "agent", "", "agent for the session")
	sessionCreateCmd.Flags().StringVar(&sessionModel, "model", "", "model for the session")
	sessionCmd.AddCommand(sessionListCmd, sessionCreateCmd, sessionRenameCmd, sessionDeleteCmd, sessionMessagesCmd, sessionAbortCmd)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage daemon sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient(loadConfig())
		list, err := client.ListSessions(context.Background())
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}

		if len(list) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tMESSAGES\tUPDATED")
		for _, s := range list {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.ID, s.Title, s.MessageCount, formatMillis(s.UpdatedAt))
		}
		return w.Flush()
	},
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient(loadConfig())
		sess, err := client.CreateSession(context.Background(), transport.CreateSessionRequest{
			Title: sessionTitle,
			Agent: sessionAgent,
			Model: sessionModel,
		})
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		fmt.Println(sess.ID)
		return nil
	},
}

var sessionRenameCmd = &cobra.Command{
	Use:   "rename <session-id> <title>...",
	Short: "Change a session's title",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient(loadConfig())
		sess, err := client.UpdateSession(context.Background(), args[0], transport.UpdateSessionRequest{
			Title: strings.Join(args[1:], " "),
		})
		if err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		fmt.Printf("Renamed %s to %q\n", sess.ID, sess.Title)
		return nil
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient(loadConfig())
		if err := client.DeleteSession(context.Background(), args[0]); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		fmt.Printf("Deleted session %s\n", args[0])
		return nil
	},
}

var sessionMessagesCmd = &cobra.Command{
	Use:   "messages <session-id>",
	Short: "Print a session's messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient(loadConfig())
		msgs, err := client.GetMessages(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("get messages: %w", err)
		}
		for _, m := range msgs {
			fmt.Printf("--- %s (%s) %s\n", m.Role, m.ID, formatMillis(m.Time.Created))
			for _, p := range m.Parts {
				printPart(p.Content)
			}
		}
		return nil
	},
}

var sessionAbortCmd = &cobra.Command{
	Use:   "abort <session-id>",
	Short: "Stop the reply being generated in a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient(loadConfig())
		if err := client.AbortMessage(context.Background(), args[0]); err != nil {
			return fmt.Errorf("abort message: %w", err)
		}
		return nil
	},
}

func printPart(c types.PartContent) {
	switch c := c.(type) {
	case types.TextContent:
		fmt.Println(c.Text)
	case types.ReasoningContent:
		fmt.Printf("(reasoning) %s\n", c.Text)
	case types.ToolUseContent:
		fmt.Printf("[tool %s %s: %s]\n", c.Name, c.ToolUseID, c.State.Status)
		if c.State.Output != "" {
			fmt.Println(c.State.Output)
		}
	}
}
