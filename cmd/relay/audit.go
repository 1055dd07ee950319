package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/relay/pkg/audit"
	"github.com/pario-ai/relay/pkg/config"
	"github.com/pario-ai/relay/pkg/models"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query and manage the route audit log",
	}

	cmd.AddCommand(
		newAuditSearchCmd(),
		newAuditShowCmd(),
		newAuditStatsCmd(),
		newAuditCleanupCmd(),
	)
	return cmd
}

func newAuditSearchCmd() *cobra.Command {
	var (
		configPath  string
		backendID   string
		outcome     string
		fingerprint string
		since       string
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search audit log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := models.AuditQueryOpts{
				Backend:     models.BackendID(backendID),
				Outcome:     models.RouteOutcome(outcome),
				Fingerprint: fingerprint,
				Limit:       limit,
			}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				opts.Since = t
			}

			entries, err := l.Query(context.Background(), opts)
			if err != nil {
				return err
			}
			fmt.Print(formatAuditEntries(entries))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().StringVar(&backendID, "backend", "", "filter by answering backend")
	cmd.Flags().StringVar(&outcome, "outcome", "", "filter by outcome (success, cached, exhausted)")
	cmd.Flags().StringVar(&fingerprint, "fingerprint", "", "filter by query fingerprint")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries to return")

	return cmd
}

func newAuditShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show ROUTE_ID",
		Short: "Show a single audit entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := l.Query(context.Background(), models.AuditQueryOpts{
				RouteID: args[0],
				Limit:   1,
			})
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No entry found for that route ID.")
				return nil
			}

			e := entries[0]
			fmt.Printf("Route ID:     %s\n", e.RouteID)
			fmt.Printf("Outcome:      %s\n", e.Outcome)
			fmt.Printf("Backend:      %s\n", e.Backend)
			fmt.Printf("Attempted:    %s\n", joinBackends(e.Attempted, ", "))
			fmt.Printf("Fingerprint:  %s\n", e.Fingerprint)
			fmt.Printf("Units:        %d\n", e.Units)
			fmt.Printf("Cost:         $%.6f\n", e.Cost)
			fmt.Printf("Latency:      %dms\n", e.LatencyMs)
			fmt.Printf("Time:         %s\n", e.CreatedAt.Format(time.RFC3339))
			if e.Error != "" {
				fmt.Printf("Error:        %s\n", e.Error)
			}
			if e.Query != "" {
				fmt.Printf("\n--- Query ---\n%s\n", e.Query)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}

func newAuditStatsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show audit log statistics by backend, outcome and day",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := l.Stats(context.Background())
			if err != nil {
				return err
			}
			fmt.Print(formatAuditStats(stats))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}

func newAuditCleanupCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete audit entries older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			deleted, err := l.Cleanup(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d audit entries.\n", deleted)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}

// openAuditLogger opens the audit database named by the config whether or not
// routing writes to it.
func openAuditLogger(configPath string) (*audit.Logger, func(), error) {
	cfg, err := config.LoadOrDefault(configPath, configPath == defaultConfigPath)
	if err != nil {
		return nil, nil, err
	}

	l, err := audit.New(cfg.Audit)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit db: %w", err)
	}
	return l, func() { _ = l.Close() }, nil
}

func joinBackends(ids []models.BackendID, sep string) string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = string(id)
	}
	return strings.Join(names, sep)
}

func formatAuditEntries(entries []models.AuditEntry) string {
	if len(entries) == 0 {
		return "No audit entries found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-38s %-10s %-8s %-22s %10s %8s %-20s\n",
		"ROUTE ID", "OUTCOME", "BACKEND", "ATTEMPTED", "COST", "LATENCY", "TIME")
	b.WriteString(strings.Repeat("-", 122) + "\n")
	for _, e := range entries {
		backendID := string(e.Backend)
		if backendID == "" {
			backendID = "-"
		}
		fmt.Fprintf(&b, "%-38s %-10s %-8s %-22s %10.6f %6dms %-20s\n",
			e.RouteID, e.Outcome, backendID, joinBackends(e.Attempted, ","),
			e.Cost, e.LatencyMs, e.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

func formatAuditStats(stats []models.AuditStat) string {
	if len(stats) == 0 {
		return "No audit stats found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %-10s %-12s %8s %12s\n", "BACKEND", "OUTCOME", "DAY", "COUNT", "COST")
	b.WriteString(strings.Repeat("-", 56) + "\n")
	for _, s := range stats {
		backendID := string(s.Backend)
		if backendID == "" {
			backendID = "-"
		}
		fmt.Fprintf(&b, "%-10s %-10s %-12s %8d %12.6f\n", backendID, s.Outcome, s.Day, s.Count, s.Cost)
	}
	return b.String()
}
