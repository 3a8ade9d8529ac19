package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(healthCmd, modelsCmd)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the daemon is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient(loadConfig())
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if !client.Health(ctx) {
			return fmt.Errorf("daemon at %s is unreachable", client.BaseURL())
		}
		fmt.Printf("daemon at %s is healthy\n", client.BaseURL())
		return nil
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List configured providers and available models",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient(loadConfig())
		ctx := context.Background()

		providers, err := client.ListProviders(ctx)
		if err != nil {
			return fmt.Errorf("list providers: %w", err)
		}
		models, err := client.ListModels(ctx)
		if err != nil {
			return fmt.Errorf("list models: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PROVIDER\tENABLED\tAPI KEY")
		for _, p := range providers {
			fmt.Fprintf(w, "%s\t%t\t%t\n", p.ID, p.Enabled, p.HasAPIKey)
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "MODEL\tPROVIDER\tCONTEXT")
		for _, m := range models {
			fmt.Fprintf(w, "%s\t%s\t%d\n", m.ID, m.ProviderID, m.ContextLength)
		}
		return w.Flush()
	},
}
