// Package cmd wires the fathom CLI.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rand/fathom/internal/config"
	"github.com/rand/fathom/internal/resolver"
	"github.com/rand/fathom/internal/router"
)

var rootCmd = &cobra.Command{
	Use:   "fathom [query...]",
	Short: "Resolve natural-language queries through recursive decomposition",
	Long: `Fathom answers natural-language queries by routing them to language
models. Complex queries are split into ordered sub-queries, resolved
concurrently within a token budget, and merged back in original order.

The query can be provided as arguments or piped from stdin.`,
	Example: `
# Answer a simple query
fathom "What is a bloom filter?"

# A compound query gets decomposed
fathom "Compare Raft and Paxos and summarize the trade-offs"

# Pin a tier and a token budget
fathom --tier powerful --budget 50000 "Analyze this design"

# Show the resolution trace
fathom --trace "Explain CRDTs and then list common types"`,
	SilenceUsage: true,
	RunE:         runAsk,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file path (default: user config dir)")
	flags.String("log-level", "", "Log level: debug, info, warn or error")

	f := rootCmd.Flags()
	f.String("model", "", "Concrete model id (overrides --tier)")
	f.String("tier", "", "Capability tier: fast, balanced, powerful or reasoning")
	f.String("effort", "", "Reasoning effort: low, medium or high")
	f.Float64("temperature", -1, "Sampling temperature (excludes --effort)")
	f.Int64("budget", 0, "Session token budget (negative: unlimited, 0: no fan-out)")
	f.Int("max-depth", 0, "Recursion depth cap (0: config value)")
	f.Bool("no-recursion", false, "Answer in a single direct call")
	f.String("scope", "", "Retrieval scope for the memory store")
	f.BoolP("trace", "t", false, "Print the resolution trace")
	f.BoolP("quiet", "q", false, "Suppress progress output")
	f.Bool("detailed", false, "Print detailed session metrics")
	f.String("csv", "", "Write session metrics as CSV to the given file")
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	quiet, _ := cmd.Flags().GetBool("quiet")
	showTrace, _ := cmd.Flags().GetBool("trace")
	detailed, _ := cmd.Flags().GetBool("detailed")
	csvPath, _ := cmd.Flags().GetString("csv")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(cfg)

	query := strings.Join(args, " ")
	query, err = maybePrependStdin(query)
	if err != nil {
		return err
	}
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("no query provided")
	}

	app, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	opts, err := resolveOptions(cmd, cfg)
	if err != nil {
		return err
	}
	if app.trace != nil {
		app.trace.SetSessionID(opts.SessionID)
	}

	if !quiet {
		fmt.Fprintf(os.Stderr, "Resolving via %s...\n", app.providerName)
	}

	start := time.Now()
	result, err := app.resolver.Resolve(ctx, query, opts)
	if err != nil {
		if result != nil && showTrace {
			printTrace(os.Stderr, result)
		}
		return fmt.Errorf("resolution failed: %w", err)
	}

	fmt.Println(result.Answer)

	if showTrace {
		printTrace(os.Stderr, result)
		fmt.Fprintf(os.Stderr, "\nDuration: %s\n", time.Since(start).Round(time.Millisecond))
	}
	if detailed {
		fmt.Fprintln(os.Stderr, result.Metrics.Detailed())
	} else if !quiet {
		fmt.Fprintln(os.Stderr, result.Metrics.Summary())
	}
	if csvPath != "" {
		if err := writeMetricsCSV(csvPath, result.Metrics); err != nil {
			return err
		}
	}
	return nil
}

// resolveOptions layers command flags over the config file.
func resolveOptions(cmd *cobra.Command, cfg *config.Config) (resolver.Options, error) {
	opts := resolver.Options{
		MaxDepth:            cfg.Recursion.MaxDepth,
		BudgetTokens:        cfg.Budget.Tokens,
		MaxParallel:         cfg.Recursion.MaxParallel,
		ComplexityThreshold: cfg.Recursion.ComplexityThreshold,
		Model:               cfg.Model.Name,
		Tier:                cfg.Tier(),
		Effort:              router.Effort(cfg.Model.Effort),
		Temperature:         cfg.Model.Temperature,
		MaxTokensPerCall:    cfg.Model.MaxTokens,
	}

	f := cmd.Flags()
	if v, _ := f.GetString("model"); v != "" {
		opts.Model = v
	}
	if v, _ := f.GetString("tier"); v != "" {
		opts.Tier = router.ParseTier(v)
	}
	if v, _ := f.GetString("scope"); v != "" {
		opts.Scope = v
	}
	if f.Changed("budget") {
		v, _ := f.GetInt64("budget")
		opts.BudgetTokens = v
	}
	if v, _ := f.GetInt("max-depth"); v > 0 {
		opts.MaxDepth = v
	}
	if v, _ := f.GetBool("no-recursion"); v || !cfg.Recursion.Enabled {
		opts.MaxDepth = -1
	}

	// Effort and temperature flags override the config pair together so
	// a flag never conflicts with a file setting it did not choose.
	effort, _ := f.GetString("effort")
	temp, _ := f.GetFloat64("temperature")
	if effort != "" && temp >= 0 {
		return opts, router.ErrConfigConflict
	}
	if effort != "" {
		if !router.ValidEffort(effort) {
			return opts, fmt.Errorf("unknown effort %q", effort)
		}
		opts.Effort = router.Effort(effort)
		opts.Temperature = nil
	}
	if temp >= 0 {
		opts.Temperature = &temp
		opts.Effort = router.EffortNone
	}
	return opts, nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// maybePrependStdin prepends piped stdin to the query.
func maybePrependStdin(query string) (string, error) {
	info, err := os.Stdin.Stat()
	if err != nil {
		return query, nil
	}
	if info.Mode()&os.ModeCharDevice != 0 || info.Size() == 0 {
		return query, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	if len(data) == 0 {
		return query, nil
	}
	return strings.TrimSpace(string(data)) + "\n\n" + query, nil
}

func printTrace(w io.Writer, result *resolver.Result) {
	fmt.Fprintf(w, "\n--- Resolution tree (session %s) ---\n", result.SessionID)
	for _, n := range result.Nodes {
		indent := strings.Repeat("  ", n.Depth)
		fmt.Fprintf(w, "%s[%s] %s\n", indent, n.Status, truncate(n.Text, 70))
		if n.Status == resolver.StatusFailed {
			fmt.Fprintf(w, "%s    reason: %s\n", indent, n.FailReason)
		}
	}
	fmt.Fprintf(w, "Budget spent: %d tokens across %d calls\n",
		result.Budget.TokensSpent, result.Budget.Calls)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
