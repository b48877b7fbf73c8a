package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/critic/internal/github"
)

var (
	flagGHOwner string
	flagGHRepo  string
	flagGHPost  bool
)

var reviewPRCmd = &cobra.Command{
	Use:   "pr <number|owner/repo#number|url>",
	Short: "Review a GitHub pull request",
	Long:  "Fetch a PR diff from GitHub, run the analyzers, and optionally post findings as PR review comments.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(buildOverrides())
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		// Owner and repo are only needed when the ref is a bare number.
		owner, repo := flagGHOwner, flagGHRepo
		if owner == "" || repo == "" {
			if detected, detectedRepo, err := github.DetectRepo(ctx); err == nil {
				if owner == "" {
					owner = detected
				}
				if repo == "" {
					repo = detectedRepo
				}
			}
		}

		pr, err := github.ParsePRRef(args[0], owner, repo)
		if err != nil {
			fail(cmd, ExitUsageError, err)
			fmt.Fprintln(cmd.ErrOrStderr(), "Use --owner and --repo flags to specify the repository.")
			return nil
		}

		client, err := github.NewClient(github.Options{
			Token:  cfg.GitHub.Token,
			APIURL: cfg.GitHub.APIURL,
		})
		if err != nil {
			fail(cmd, ExitAuthError, err)
			return nil
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "Fetching PR %s...\n", pr)
		cs, err := client.FetchChangeSet(ctx, pr)
		if err != nil {
			if errors.Is(err, github.ErrAuth) {
				fail(cmd, ExitAuthError, err)
			} else {
				fail(cmd, ExitRuntimeError, err)
			}
			return nil
		}

		if len(cs.Records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "PR has no diff, nothing to review.")
			return nil
		}

		summary := runReview(cmd, cs, cfg)
		if summary == nil {
			return nil
		}

		if !flagGHPost {
			fmt.Fprintf(cmd.ErrOrStderr(), "%d findings found, not posting to GitHub (use --post).\n", summary.Counts.Total())
			return nil
		}

		ghReview := github.BuildReview(summary, cs.Records)
		fmt.Fprintf(cmd.ErrOrStderr(), "Posting review (%d inline comments)...\n", len(ghReview.Comments))
		if err := client.PostReview(ctx, pr, ghReview); err != nil {
			code := ExitRuntimeError
			if errors.Is(err, github.ErrAuth) {
				code = ExitAuthError
			}
			fail(cmd, code, fmt.Errorf("posting review: %w", err))
			return nil
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Review posted to PR %s.\n", pr)
		return nil
	},
}

func init() {
	reviewPRCmd.Flags().StringVar(&flagGHOwner, "owner", "", "GitHub repository owner (auto-detected if omitted)")
	reviewPRCmd.Flags().StringVar(&flagGHRepo, "repo", "", "GitHub repository name (auto-detected if omitted)")
	reviewPRCmd.Flags().BoolVar(&flagGHPost, "post", false, "Post findings to the pull request as a review")
}
