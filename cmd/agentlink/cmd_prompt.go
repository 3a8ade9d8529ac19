package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/agentlink/internal/transport"
)

func init() {
	rootCmd.AddCommand(permissionCmd, questionCmd)
	permissionCmd.AddCommand(permissionListCmd, permissionReplyCmd)
	questionCmd.AddCommand(questionListCmd, questionReplyCmd)
}

var permissionCmd = &cobra.Command{
	Use:   "permission",
	Short: "Answer tool permission requests",
}

var permissionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending permission requests",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient(loadConfig())
		reqs, err := client.ListPermissions(context.Background())
		if err != nil {
			return fmt.Errorf("list permissions: %w", err)
		}
		if len(reqs) == 0 {
			fmt.Println("No pending permissions.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSESSION\tPERMISSION\tPATTERNS")
		for _, r := range reqs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.SessionID, r.Permission, strings.Join(r.Patterns, ", "))
		}
		return w.Flush()
	},
}

var permissionReplyCmd = &cobra.Command{
	Use:       "reply <request-id> allow|reject|always",
	Short:     "Answer a permission request",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{string(transport.DecisionAllow), string(transport.DecisionReject), string(transport.DecisionAlways)},
	RunE: func(cmd *cobra.Command, args []string) error {
		decision := transport.PermissionDecision(strings.ToLower(args[1]))
		switch decision {
		case transport.DecisionAllow, transport.DecisionReject, transport.DecisionAlways:
		default:
			return fmt.Errorf("invalid decision %q: want allow, reject or always", args[1])
		}

		client := newClient(loadConfig())
		err := client.ReplyPermission(context.Background(), transport.PermissionReplyRequest{
			RequestID: args[0],
			Decision:  decision,
		})
		if err != nil {
			return fmt.Errorf("reply permission: %w", err)
		}
		return nil
	},
}

var questionCmd = &cobra.Command{
	Use:   "question",
	Short: "Answer questions asked by the agent",
}

var questionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending questions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient(loadConfig())
		reqs, err := client.ListQuestions(context.Background())
		if err != nil {
			return fmt.Errorf("list questions: %w", err)
		}
		if len(reqs) == 0 {
			fmt.Println("No pending questions.")
			return nil
		}
		for _, r := range reqs {
			fmt.Printf("%s (session %s)\n", r.ID, r.SessionID)
			for i, q := range r.Questions {
				fmt.Printf("  %d. [%s] %s\n", i+1, q.Header, q.Question)
				for _, opt := range q.Options {
					fmt.Printf("     - %s", opt.Label)
					if opt.Description != "" {
						fmt.Printf(": %s", opt.Description)
					}
					fmt.Println()
				}
			}
		}
		return nil
	},
}

var questionReplyCmd = &cobra.Command{
	Use:   "reply <request-id> <answer>...",
	Short: "Answer a question request, one argument per question",
	Long: `Answer a question request. Pass one argument per question in order.
Separate several selections for a multiple-choice question with commas.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		answers := make([][]string, 0, len(args)-1)
		for _, a := range args[1:] {
			var picks []string
			for _, p := range strings.Split(a, ",") {
				if p = strings.TrimSpace(p); p != "" {
					picks = append(picks, p)
				}
			}
			answers = append(answers, picks)
		}

		client := newClient(loadConfig())
		err := client.ReplyQuestion(context.Background(), transport.QuestionReplyRequest{
			RequestID: args[0],
			Answers:   answers,
		})
		if err != nil {
			return fmt.Errorf("reply question: %w", err)
		}
		return nil
	},
}
