package analyzers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/timeout"
	"github.com/rs/zerolog"

	"github.com/dshills/critic/internal/config"
	"github.com/dshills/critic/internal/diffparse"
	"github.com/dshills/critic/internal/logging"
	"github.com/dshills/critic/internal/review"
)

// ErrToolNotFound is returned by a Runner when the executable is missing.
var ErrToolNotFound = errors.New("tool not found")

// Runner executes an external command and returns its standard output.
// A non-zero exit status is not an error; linters use it to signal findings.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(err, exec.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", name, ErrToolNotFound)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if stdout.Len() == 0 && exitErr.ExitCode() > 1 {
			return nil, fmt.Errorf("%s exited %d: %s", name, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return stdout.Bytes(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("running %s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// Static runs Python linters over the code recovered from a file's patch.
type Static struct {
	cfg     config.StaticConfig
	runner  Runner
	timeout time.Duration
	tempDir string
	log     zerolog.Logger
}

// StaticOption configures a Static analyzer.
type StaticOption func(*Static)

// WithRunner replaces the command runner.
func WithRunner(r Runner) StaticOption {
	return func(s *Static) { s.runner = r }
}

// WithTempDir sets where temporary source files are written.
func WithTempDir(dir string) StaticOption {
	return func(s *Static) { s.tempDir = dir }
}

// NewStatic creates the linter analyzer.
func NewStatic(cfg config.StaticConfig, opts ...StaticOption) *Static {
	s := &Static{
		cfg:     cfg,
		runner:  ExecRunner{},
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		log:     logging.Component("static"),
	}
	if s.timeout <= 0 {
		s.timeout = 30 * time.Second
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements review.Analyzer.
func (s *Static) Name() string { return "static" }

// CacheKind includes the tool settings so a config change invalidates
// cached results.
func (s *Static) CacheKind() string {
	var b strings.Builder
	for _, tool := range s.cfg.Tools {
		b.WriteString(tool)
		b.WriteString(strings.Join(s.args(tool, ""), " "))
		b.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return "static:" + hex.EncodeToString(sum[:6])
}

// CanAnalyze accepts Python files only.
func (s *Static) CanAnalyze(rec review.ChangeRecord) bool {
	return rec.Language == "python" || strings.HasSuffix(rec.Path, ".py")
}

// Analyze writes the reconstructed code to a temp file and runs each
// configured tool on it. Missing tools are skipped. The call fails only if
// every tool that was found failed.
func (s *Static) Analyze(ctx context.Context, rec review.ChangeRecord) (*review.AnalysisResult, error) {
	code := diffparse.ExtractCode(rec.Patch)
	if strings.TrimSpace(code) == "" || len(s.cfg.Tools) == 0 {
		return nil, nil
	}

	f, err := os.CreateTemp(s.tempDir, "critic-*.py")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)
	if _, err := f.WriteString(code); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("writing temp file: %w", err)
	}

	lineIndex := diffparse.LineIndex(rec.Patch)
	translate := func(n int) int {
		if n < 1 || n > len(lineIndex) {
			return 0
		}
		return lineIndex[n-1]
	}

	var (
		findings []review.Finding
		ran      []string
		failures []string
	)
	t := timeout.New[[]byte](timeout.Config{DefaultTimeout: s.timeout})
	for _, tool := range s.cfg.Tools {
		args := s.args(tool, tmp)
		out, err := t.Execute(ctx, s.timeout, func(ctx context.Context) ([]byte, error) {
			return s.runner.Run(ctx, tool, args...)
		})
		if errors.Is(err, ErrToolNotFound) {
			s.log.Debug().Str("tool", tool).Msg("linter not installed, skipping")
			continue
		}
		if err != nil {
			s.log.Warn().Err(err).Str("tool", tool).Str("path", rec.Path).Msg("linter failed")
			failures = append(failures, fmt.Sprintf("%s: %v", tool, err))
			continue
		}
		parsed, err := parseToolOutput(tool, out, translate)
		if err != nil {
			s.log.Warn().Err(err).Str("tool", tool).Str("path", rec.Path).Msg("unreadable linter output")
			failures = append(failures, fmt.Sprintf("%s: %v", tool, err))
			continue
		}
		ran = append(ran, tool)
		findings = append(findings, parsed...)
	}

	if len(ran) == 0 && len(failures) > 0 {
		return nil, errors.New(strings.Join(failures, "; "))
	}
	if len(ran) == 0 {
		return nil, nil
	}

	for i := range findings {
		findings[i].Path = rec.Path
	}
	return &review.AnalysisResult{
		Findings:    findings,
		Succeeded:   true,
		ErrorDetail: strings.Join(failures, "; "),
		Metadata:    map[string]any{"static.tools": strings.Join(ran, ",")},
	}, nil
}

func (s *Static) args(tool, file string) []string {
	var args []string
	switch tool {
	case "flake8":
		if n := s.cfg.Flake8.MaxLineLength; n > 0 {
			args = append(args, "--max-line-length="+strconv.Itoa(n))
		}
		if len(s.cfg.Flake8.Ignore) > 0 {
			args = append(args, "--extend-ignore="+strings.Join(s.cfg.Flake8.Ignore, ","))
		}
	case "bandit":
		args = append(args, "-f", "json", "-q")
		if len(s.cfg.Bandit.Skip) > 0 {
			args = append(args, "-s", strings.Join(s.cfg.Bandit.Skip, ","))
		}
	case "mypy":
		args = append(args, "--no-error-summary", "--no-color-output", "--show-error-codes")
		if s.cfg.Mypy.Strict {
			args = append(args, "--strict")
		}
		if s.cfg.Mypy.IgnoreMissingImports {
			args = append(args, "--ignore-missing-imports")
		}
	}
	if file != "" {
		args = append(args, file)
	}
	return args
}

func parseToolOutput(tool string, out []byte, translate func(int) int) ([]review.Finding, error) {
	switch tool {
	case "flake8":
		return parseFlake8(out, translate), nil
	case "bandit":
		return parseBandit(out, translate)
	case "mypy":
		return parseMypy(out, translate), nil
	default:
		return nil, fmt.Errorf("unsupported tool %q", tool)
	}
}

var flake8Re = regexp.MustCompile(`^.*?:(\d+):\d+: ([A-Z]+\d+) (.*)$`)

func parseFlake8(out []byte, translate func(int) int) []review.Finding {
	var findings []review.Finding
	for _, line := range strings.Split(string(out), "\n") {
		m := flake8Re.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		code := m[2]
		findings = append(findings, review.Finding{
			Body:     fmt.Sprintf("[flake8 %s] %s", code, m[3]),
			Severity: flake8Severity(code),
			Line:     translate(n),
		})
	}
	return findings
}

func flake8Severity(code string) review.Severity {
	switch code[0] {
	case 'E', 'F':
		return review.SeverityError
	case 'W', 'C':
		return review.SeverityWarning
	default:
		return review.SeverityInfo
	}
}

type banditReport struct {
	Results []struct {
		TestID        string `json:"test_id"`
		IssueSeverity string `json:"issue_severity"`
		IssueText     string `json:"issue_text"`
		LineNumber    int    `json:"line_number"`
	} `json:"results"`
}

func parseBandit(out []byte, translate func(int) int) ([]review.Finding, error) {
	if len(bytes.TrimSpace(out)) == 0 {
		return nil, nil
	}
	var report banditReport
	if err := json.Unmarshal(out, &report); err != nil {
		return nil, fmt.Errorf("decoding bandit json: %w", err)
	}
	findings := make([]review.Finding, 0, len(report.Results))
	for _, r := range report.Results {
		findings = append(findings, review.Finding{
			Body:     fmt.Sprintf("[bandit %s] %s", r.TestID, r.IssueText),
			Severity: banditSeverity(r.IssueSeverity),
			Line:     translate(r.LineNumber),
		})
	}
	return findings, nil
}

func banditSeverity(s string) review.Severity {
	switch strings.ToUpper(s) {
	case "HIGH":
		return review.SeverityError
	case "MEDIUM":
		return review.SeverityWarning
	default:
		return review.SeverityInfo
	}
}

var (
	mypyRe     = regexp.MustCompile(`^.*?:(\d+):(?:\d+:)? (error|warning|note): (.*)$`)
	mypyCodeRe = regexp.MustCompile(`\s+\[([a-z0-9-]+)\]$`)
)

func parseMypy(out []byte, translate func(int) int) []review.Finding {
	var findings []review.Finding
	for _, line := range strings.Split(string(out), "\n") {
		m := mypyRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		msg := m[3]
		tag := "mypy"
		if c := mypyCodeRe.FindStringSubmatch(msg); c != nil {
			tag = "mypy " + c[1]
			msg = strings.TrimSuffix(msg, c[0])
		}
		findings = append(findings, review.Finding{
			Body:     fmt.Sprintf("[%s] %s", tag, msg),
			Severity: mypySeverity(m[2]),
			Line:     translate(n),
		})
	}
	return findings
}

func mypySeverity(level string) review.Severity {
	switch level {
	case "error":
		return review.SeverityError
	case "warning":
		return review.SeverityWarning
	default:
		return review.SeverityInfo
	}
}
