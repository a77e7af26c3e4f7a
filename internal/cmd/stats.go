package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rand/fathom/internal/telemetry"
	"github.com/rand/fathom/internal/trace"
)

var statsCmd = &cobra.Command{
	Use:   "stats [session-id]",
	Short: "Show recorded resolution statistics",
	Long: `Show statistics from the resolution trace database. Without a
session id, recent sessions are listed; with one, that session's totals
and event tree are printed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if !cfg.Trace.Enabled || cfg.Trace.Path == "" {
			return fmt.Errorf("no trace database configured (set trace.enabled and trace.path)")
		}

		store, err := trace.New(trace.Config{Path: cfg.Trace.Path})
		if err != nil {
			return fmt.Errorf("open trace store: %w", err)
		}
		defer store.Close()

		ctx := cmd.Context()
		if len(args) == 0 {
			sessions, err := store.Sessions(ctx, 20)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Println("No recorded sessions.")
				return nil
			}
			fmt.Printf("%-38s %8s %10s  %s\n", "SESSION", "EVENTS", "TOKENS", "STARTED")
			for _, s := range sessions {
				fmt.Printf("%-38s %8d %10d  %s\n",
					s.SessionID, s.Events, s.Tokens,
					time.UnixMilli(s.StartedAt).Format(time.RFC3339))
			}
			return nil
		}

		sessionID := args[0]
		stats, err := store.SessionStats(ctx, sessionID)
		if err != nil {
			return err
		}
		fmt.Printf("Session %s:\n", sessionID)
		fmt.Printf("  Events:      %d\n", stats.TotalEvents)
		fmt.Printf("  Tokens:      %d\n", stats.TotalTokens)
		fmt.Printf("  Max depth:   %d\n", stats.MaxDepth)
		fmt.Printf("  Failures:    %d\n", stats.Failed)
		fmt.Printf("  Tier shifts: %d\n", stats.TierShifts)

		events, err := store.Events(ctx, sessionID)
		if err != nil {
			return err
		}
		if len(events) > 0 {
			fmt.Println("\nEvents:")
			for _, ev := range events {
				indent := strings.Repeat("  ", ev.Depth)
				line := fmt.Sprintf("%s[%s] %s", indent, ev.Kind, ev.NodeID)
				if ev.Detail != "" {
					line += " " + ev.Detail
				}
				if ev.Tokens > 0 {
					line += fmt.Sprintf(" (%d tokens)", ev.Tokens)
				}
				fmt.Println(line)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

// writeMetricsCSV exports session metrics to path.
func writeMetricsCSV(path string, m telemetry.SessionMetrics) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()
	if err := m.WriteCSV(f); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
