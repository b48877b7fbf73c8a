package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/dshills/critic/internal/analyzers"
	"github.com/dshills/critic/internal/cache"
	"github.com/dshills/critic/internal/config"
	"github.com/dshills/critic/internal/gitctx"
	"github.com/dshills/critic/internal/logging"
	"github.com/dshills/critic/internal/output"
	"github.com/dshills/critic/internal/redact"
	"github.com/dshills/critic/internal/review"
)

// Shared review flags
var (
	flagPaths        string
	flagContextLines int
	flagFormat       string
	flagOut          string
	flagFailOn       string
	flagParallel     bool
	flagMaxWorkers   int
	flagNoCache      bool
	flagMetricsFile  string
	flagRules        string
	flagNoRedact     bool
)

func addReviewFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagPaths, "paths", "", "Limit the diff to these pathspecs (comma-separated)")
	cmd.Flags().IntVar(&flagContextLines, "context-lines", 0, "Number of context lines in diff")
	cmd.Flags().StringVar(&flagFormat, "format", "", "Output format (text, json, markdown, sarif)")
	cmd.Flags().StringVar(&flagOut, "out", "", "Output file path (default: stdout)")
	cmd.Flags().StringVar(&flagFailOn, "fail-on", "", "Fail on severity threshold (none, error, warning, info, suggestion)")
	cmd.Flags().BoolVar(&flagParallel, "parallel", false, "Analyze files concurrently")
	cmd.Flags().IntVar(&flagMaxWorkers, "max-workers", 0, "Maximum concurrent files in parallel mode")
	cmd.Flags().BoolVar(&flagNoCache, "no-cache", false, "Bypass the result cache")
	cmd.Flags().StringVar(&flagMetricsFile, "metrics-file", "", "Write Prometheus metrics in text format to this file")
	cmd.Flags().StringVar(&flagRules, "rules", "", "Rules file path")
	cmd.Flags().BoolVar(&flagNoRedact, "no-redact", false, "Disable secret redaction (use with caution)")
}

func buildOverrides() map[string]string {
	m := make(map[string]string)
	if flagFormat != "" {
		m["format"] = flagFormat
	}
	if flagFailOn != "" {
		m["failOn"] = flagFailOn
	}
	if flagParallel {
		m["engine.parallel"] = "true"
	}
	if flagMaxWorkers > 0 {
		m["engine.maxWorkers"] = strconv.Itoa(flagMaxWorkers)
	}
	if flagNoCache {
		m["cache.enabled"] = "false"
	}
	if flagRules != "" {
		m["rulesFile"] = flagRules
	}
	if flagNoRedact {
		m["privacy.redactSecrets"] = "false"
	}
	return m
}

func buildRequest(mode gitctx.Mode, rev string) gitctx.Request {
	return gitctx.Request{
		Mode:         mode,
		Rev:          rev,
		MergeBase:    flagMergeBase,
		ContextLines: flagContextLines,
		Paths:        splitComma(flagPaths),
	}
}

func splitComma(s string) []string {
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

func filterFromConfig(cfg config.Config) review.Filter {
	return review.Filter{
		IncludedExtensions: cfg.Filter.IncludedExtensions,
		ExcludedDirs:       cfg.Filter.ExcludedDirs,
		ExcludedPatterns:   cfg.Filter.ExcludedPatterns,
	}
}

// analyze runs the configured analyzers over cs and returns the summary.
// Metrics from the run are registered with reg.
func analyze(ctx context.Context, cs review.ChangeSet, cfg config.Config, reg *prometheus.Registry) (*review.ReviewSummary, error) {
	c, err := cache.Open(cache.Options{
		Enabled:    cfg.Cache.Enabled,
		Path:       cfg.Cache.Path,
		TTL:        time.Duration(cfg.Cache.TTLHours) * time.Hour,
		Registerer: reg,
	})
	if err != nil {
		l := logging.Component("cli")
		l.Warn().Err(err).Str("path", cfg.Cache.Path).Msg("cache unavailable, continuing without it")
		c, _ = cache.Open(cache.Options{})
	}
	defer c.Close()

	rules, err := review.LoadRules(cfg.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}

	engine := review.NewEngine(review.EngineConfig{
		Filter:     filterFromConfig(cfg),
		MaxWorkers: cfg.Engine.MaxWorkers,
		Rules:      rules,
	}, review.WithMetrics(review.NewMetrics(reg)))

	for _, a := range analyzers.FromConfig(cfg, c) {
		if err := engine.Register(a); err != nil {
			return nil, err
		}
	}

	summary := engine.Analyze(ctx, cs, cfg.Engine.Parallel)
	summary.Version = version
	return summary, nil
}

// runReview analyzes cs, writes the report and sets the exit code. It
// returns the summary, or nil when the review could not be completed.
func runReview(cmd *cobra.Command, cs review.ChangeSet, cfg config.Config) *review.ReviewSummary {
	if !cfg.Privacy.RedactSecrets {
		fmt.Fprintln(cmd.ErrOrStderr(), "WARNING: secret redaction is disabled")
	}

	reg := prometheus.NewRegistry()
	summary, err := analyze(cmd.Context(), cs, cfg, reg)
	if err != nil {
		fail(cmd, ExitRuntimeError, err)
		return nil
	}

	if cfg.Privacy.RedactSecrets {
		if report := redact.Summary(summary, cfg.Privacy.RedactPaths); report.Total() > 0 {
			l := logging.Component("cli")
			l.Info().Int("redactions", report.Total()).Interface("byKind", report).Msg("redacted report text")
		}
	}

	if err := output.WriteSummary(summary, cfg.Format, flagOut); err != nil {
		fail(cmd, ExitRuntimeError, fmt.Errorf("writing output: %w", err))
		return nil
	}

	if flagMetricsFile != "" {
		if err := prometheus.WriteToTextfile(flagMetricsFile, reg); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: writing metrics: %v\n", err)
		}
	}

	exitCode = summaryExitCode(summary, cfg.FailOn)
	return summary
}

// summaryExitCode maps a finished review onto the process exit code. A run in
// which every analyzed file failed is a runtime error even if nothing crossed
// the threshold. An empty run is not: there was nothing to fail on.
func summaryExitCode(s *review.ReviewSummary, failOn string) int {
	if len(s.Results) > 0 && len(s.FailedResults()) == len(s.Results) {
		return ExitRuntimeError
	}
	if s.HighestSeverity != "" && review.MeetsThreshold(s.HighestSeverity, failOn) {
		return ExitFindings
	}
	return ExitSuccess
}

// reviewGit collects a diff from the local repository and reviews it.
func reviewGit(cmd *cobra.Command, req gitctx.Request) error {
	cfg, err := loadConfig(buildOverrides())
	if err != nil {
		return err
	}
	cs, err := gitctx.Git{}.ChangeSet(cmd.Context(), req)
	if err != nil {
		fail(cmd, ExitRuntimeError, err)
		return nil
	}
	if len(cs.Records) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "No changes to review.")
	}
	runReview(cmd, cs, cfg)
	return nil
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review code changes",
	Long:  "Review code changes with the configured analyzers. Use subcommands to specify what to review.",
}

var reviewUnstagedCmd = &cobra.Command{
	Use:   "unstaged",
	Short: "Review unstaged changes (working tree vs index)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewGit(cmd, buildRequest(gitctx.ModeUnstaged, ""))
	},
}

var reviewStagedCmd = &cobra.Command{
	Use:   "staged",
	Short: "Review staged changes (index vs HEAD)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewGit(cmd, buildRequest(gitctx.ModeStaged, ""))
	},
}

var reviewUncommittedCmd = &cobra.Command{
	Use:   "uncommitted",
	Short: "Review staged and unstaged changes together (working tree vs HEAD)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewGit(cmd, buildRequest(gitctx.ModeUncommitted, ""))
	},
}

var reviewCommitCmd = &cobra.Command{
	Use:   "commit <sha>",
	Short: "Review a specific commit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewGit(cmd, buildRequest(gitctx.ModeCommit, args[0]))
	},
}

var (
	flagMergeBase bool
)

var reviewRangeCmd = &cobra.Command{
	Use:   "range <revRange>",
	Short: "Review a revision range (e.g., origin/main..HEAD)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewGit(cmd, buildRequest(gitctx.ModeRange, args[0]))
	},
}

var reviewDiffCmd = &cobra.Command{
	Use:   "diff [file|-]",
	Short: "Review a unified diff from a file or stdin",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(buildOverrides())
		if err != nil {
			return err
		}

		label := "stdin"
		var data []byte
		if len(args) == 1 && args[0] != "-" {
			label = args[0]
			data, err = os.ReadFile(args[0])
		} else {
			data, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			fail(cmd, ExitRuntimeError, fmt.Errorf("reading diff: %w", err))
			return nil
		}

		cs := gitctx.FromText(label, string(data))
		if len(cs.Records) == 0 {
			if len(strings.TrimSpace(string(data))) > 0 {
				fail(cmd, ExitUsageError, errors.New("input does not contain a unified diff"))
				return nil
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "No changes to review.")
		}
		runReview(cmd, cs, cfg)
		return nil
	},
}

func init() {
	reviewCmd.AddCommand(reviewUnstagedCmd)
	reviewCmd.AddCommand(reviewStagedCmd)
	reviewCmd.AddCommand(reviewUncommittedCmd)
	reviewCmd.AddCommand(reviewCommitCmd)
	reviewCmd.AddCommand(reviewRangeCmd)
	reviewCmd.AddCommand(reviewDiffCmd)
	reviewCmd.AddCommand(reviewPRCmd)

	// Add shared flags to all review subcommands
	for _, cmd := range []*cobra.Command{
		reviewUnstagedCmd,
		reviewStagedCmd,
		reviewUncommittedCmd,
		reviewCommitCmd,
		reviewRangeCmd,
		reviewDiffCmd,
		reviewPRCmd,
	} {
		addReviewFlags(cmd)
	}

	// Range-specific flags
	reviewRangeCmd.Flags().BoolVar(&flagMergeBase, "merge-base", true, "Use merge base for branch comparisons")
}
