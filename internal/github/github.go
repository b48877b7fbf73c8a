package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	gh "github.com/google/go-github/v69/github"
	"github.com/rs/zerolog"

	"github.com/dshills/critic/internal/diffparse"
	"github.com/dshills/critic/internal/logging"
	"github.com/dshills/critic/internal/review"
)

var (
	// ErrNoToken is returned when no API token is configured.
	ErrNoToken = errors.New("GITHUB_TOKEN is not set")
	// ErrAuth is returned when GitHub rejects the token.
	ErrAuth = errors.New("github authentication failed")
	// ErrNotFound is returned for a missing repository or pull request.
	ErrNotFound = errors.New("not found on github")
)

// Options configures a Client.
type Options struct {
	Token string
	// APIURL overrides the REST endpoint, e.g. for GitHub Enterprise
	// ("https://ghe.example.com/api/v3").
	APIURL     string
	HTTPClient *http.Client
	// MaxAttempts and RetryDelay control retries of read calls.
	MaxAttempts int
	RetryDelay  time.Duration
	Logger      *zerolog.Logger
}

// Client wraps the GitHub REST API for pull request review.
type Client struct {
	api         *gh.Client
	maxAttempts int
	retryDelay  time.Duration
	log         zerolog.Logger
}

// NewClient creates a client. It fails with ErrNoToken when opts.Token is
// empty.
func NewClient(opts Options) (*Client, error) {
	if opts.Token == "" {
		return nil, ErrNoToken
	}
	httpCli := opts.HTTPClient
	if httpCli == nil {
		httpCli = &http.Client{Timeout: 60 * time.Second}
	}
	api := gh.NewClient(httpCli).WithAuthToken(opts.Token)
	if opts.APIURL != "" {
		u, err := url.Parse(strings.TrimRight(opts.APIURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid github api url: %w", err)
		}
		api.BaseURL = u
	}

	c := &Client{
		api:         api,
		maxAttempts: opts.MaxAttempts,
		retryDelay:  opts.RetryDelay,
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 3
	}
	if c.retryDelay <= 0 {
		c.retryDelay = 500 * time.Millisecond
	}
	if opts.Logger != nil {
		c.log = *opts.Logger
	} else {
		c.log = logging.Component("github")
	}
	return c, nil
}

// PullRequest identifies a pull request.
type PullRequest struct {
	Owner  string
	Repo   string
	Number int
}

func (p PullRequest) String() string {
	return fmt.Sprintf("%s/%s#%d", p.Owner, p.Repo, p.Number)
}

// FetchChangeSet downloads the pull request's metadata and diff and parses
// the diff into change records.
func (c *Client) FetchChangeSet(ctx context.Context, pr PullRequest) (review.ChangeSet, error) {
	meta, err := withRetry(ctx, c, func(ctx context.Context) (*gh.PullRequest, error) {
		p, _, err := c.api.PullRequests.Get(ctx, pr.Owner, pr.Repo, pr.Number)
		return p, classify(err, pr)
	})
	if err != nil {
		return review.ChangeSet{}, err
	}

	diff, err := withRetry(ctx, c, func(ctx context.Context) (string, error) {
		raw, _, err := c.api.PullRequests.GetRaw(ctx, pr.Owner, pr.Repo, pr.Number, gh.RawOptions{Type: gh.Diff})
		return raw, classify(err, pr)
	})
	if err != nil {
		return review.ChangeSet{}, err
	}

	records := diffparse.Parse(diff)
	c.log.Debug().Str("pr", pr.String()).Int("files", len(records)).Msg("fetched pull request")

	return review.ChangeSet{
		ID:      pr.String(),
		Title:   meta.GetTitle(),
		Source:  "github",
		Ref:     meta.GetHead().GetSHA(),
		Records: records,
	}, nil
}

// PostReview submits a review on the pull request. Posting is not retried so
// a timeout cannot produce a duplicate review.
func (c *Client) PostReview(ctx context.Context, pr PullRequest, req *gh.PullRequestReviewRequest) error {
	_, _, err := c.api.PullRequests.CreateReview(ctx, pr.Owner, pr.Repo, pr.Number, req)
	if err != nil {
		var ghErr *gh.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusUnprocessableEntity {
			return fmt.Errorf("GitHub rejected review (422): %s", ghErr.Message)
		}
		return fmt.Errorf("posting review: %w", classify(err, pr))
	}
	c.log.Info().Str("pr", pr.String()).Int("comments", len(req.Comments)).Msg("posted review")
	return nil
}

// withRetry runs fn with exponential backoff. Auth and not-found errors end
// the loop at once. On failure it returns the last error fn produced so
// callers can match the sentinel errors.
func withRetry[T any](ctx context.Context, c *Client, fn func(context.Context) (T, error)) (T, error) {
	r := retry.New[T](retry.Config{
		MaxAttempts:   c.maxAttempts,
		InitialDelay:  c.retryDelay,
		BackoffPolicy: retry.BackoffExponential,
	})
	var last, permanent error
	v, err := r.Do(ctx, func(ctx context.Context) (T, error) {
		v, err := fn(ctx)
		if errors.Is(err, ErrAuth) || errors.Is(err, ErrNotFound) {
			// Report success to stop retrying; the error is returned below.
			permanent = err
			return v, nil
		}
		if err != nil {
			last = err
		}
		return v, err
	})
	if permanent != nil {
		var zero T
		return zero, permanent
	}
	if err != nil && last != nil {
		return v, last
	}
	return v, err
}

// classify maps API errors onto the package's sentinel errors.
func classify(err error, pr PullRequest) error {
	if err == nil {
		return nil
	}
	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch ghErr.Response.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrAuth, ghErr.Message)
		case http.StatusNotFound:
			return fmt.Errorf("PR %s: %w", pr, ErrNotFound)
		}
	}
	return err
}

// BuildReview converts a summary into a review request. Findings on lines
// that appear in the diff become inline comments; the rest are listed in the
// review body.
func BuildReview(summary *review.ReviewSummary, records []review.ChangeRecord) *gh.PullRequestReviewRequest {
	commentable := make(map[string]map[int]string, len(records))
	for _, rec := range records {
		commentable[rec.Path] = diffparse.ReconstructLines(rec.Patch)
	}

	var (
		bodyComments []string
		comments     []*gh.DraftReviewComment
	)
	for _, f := range summary.Findings() {
		lines, inDiff := commentable[f.Path]
		if _, onLine := lines[f.Line]; inDiff && f.Line > 0 && onLine {
			comments = append(comments, &gh.DraftReviewComment{
				Path: gh.Ptr(f.Path),
				Line: gh.Ptr(f.Line),
				Side: gh.Ptr("RIGHT"),
				Body: gh.Ptr(formatInlineComment(f)),
			})
			continue
		}
		bodyComments = append(bodyComments, formatFindingBody(f))
	}

	c := summary.Counts
	var sb strings.Builder
	sb.WriteString("## Critic Code Review\n\n")
	sb.WriteString("| Severity | Count |\n|----------|-------|\n")
	fmt.Fprintf(&sb, "| Error | %d |\n", c.Error)
	fmt.Fprintf(&sb, "| Warning | %d |\n", c.Warning)
	fmt.Fprintf(&sb, "| Info | %d |\n", c.Info)
	fmt.Fprintf(&sb, "| Suggestion | %d |\n\n", c.Suggestion)

	if len(bodyComments) > 0 {
		sb.WriteString("### General Findings\n\n")
		for _, bc := range bodyComments {
			sb.WriteString(bc)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	if failed := summary.FailedResults(); len(failed) > 0 {
		sb.WriteString("### Not Analyzed\n\n")
		for _, r := range failed {
			fmt.Fprintf(&sb, "- `%s`: %s\n", r.Path, r.ErrorDetail)
		}
	}

	req := &gh.PullRequestReviewRequest{
		Body:     gh.Ptr(sb.String()),
		Event:    gh.Ptr("COMMENT"),
		Comments: comments,
	}
	if summary.ChangeSet.Ref != "" {
		req.CommitID = gh.Ptr(summary.ChangeSet.Ref)
	}
	return req
}

func formatInlineComment(f review.Finding) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s** (%s)\n\n%s", strings.ToUpper(string(f.Severity)), f.ProducedBy, f.Body)
	if f.SuggestedFix != "" {
		fmt.Fprintf(&sb, "\n\n**Suggestion:**\n```\n%s\n```", f.SuggestedFix)
	}
	return sb.String()
}

func formatFindingBody(f review.Finding) string {
	loc := f.Path
	if f.Line > 0 {
		loc = fmt.Sprintf("%s:%d", f.Path, f.Line)
	}
	s := fmt.Sprintf("- **%s** `%s`: %s", f.Severity, loc, f.Body)
	if f.SuggestedFix != "" {
		s += fmt.Sprintf(" *Suggestion: %s*", f.SuggestedFix)
	}
	return s
}

var (
	httpsRemoteRe = regexp.MustCompile(`https?://[^/]+/([^/]+)/([^/.\s]+)`)
	sshRemoteRe   = regexp.MustCompile(`[^@]+@[^:]+:([^/]+)/([^/.\s]+)`)
)

// DetectRepo parses owner/repo from the git remote origin URL.
func DetectRepo(ctx context.Context) (owner, repo string, err error) {
	out, err := exec.CommandContext(ctx, "git", "remote", "get-url", "origin").Output()
	if err != nil {
		return "", "", fmt.Errorf("cannot detect repo: git remote get-url origin failed: %w", err)
	}
	return ParseRemoteURL(strings.TrimSpace(string(out)))
}

// ParseRemoteURL extracts owner/repo from a git remote URL.
func ParseRemoteURL(url string) (owner, repo string, err error) {
	url = strings.TrimSuffix(url, ".git")

	if m := httpsRemoteRe.FindStringSubmatch(url); len(m) == 3 {
		return m[1], m[2], nil
	}
	if m := sshRemoteRe.FindStringSubmatch(url); len(m) == 3 {
		return m[1], m[2], nil
	}
	return "", "", fmt.Errorf("cannot parse owner/repo from remote URL: %s", url)
}

// ParsePRRef parses "owner/repo#N", "N" (using fallback owner and repo), or a
// pull request URL.
func ParsePRRef(ref, fallbackOwner, fallbackRepo string) (PullRequest, error) {
	if m := prURLRe.FindStringSubmatch(ref); m != nil {
		n, err := parsePRNumber(m[3])
		return PullRequest{Owner: m[1], Repo: m[2], Number: n}, err
	}
	if m := prShortRe.FindStringSubmatch(ref); m != nil {
		n, err := parsePRNumber(m[3])
		return PullRequest{Owner: m[1], Repo: m[2], Number: n}, err
	}
	n, err := parsePRNumber(strings.TrimPrefix(ref, "#"))
	if err != nil {
		return PullRequest{}, err
	}
	if fallbackOwner == "" || fallbackRepo == "" {
		return PullRequest{}, fmt.Errorf("PR %q needs owner/repo", ref)
	}
	return PullRequest{Owner: fallbackOwner, Repo: fallbackRepo, Number: n}, nil
}

var (
	prURLRe   = regexp.MustCompile(`^https?://[^/]+/([^/]+)/([^/]+)/pull/(\d+)`)
	prShortRe = regexp.MustCompile(`^([^/\s]+)/([^#\s]+)#(\d+)$`)
)

func parsePRNumber(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid PR number %q", s)
	}
	return n, nil
}
