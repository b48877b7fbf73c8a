package analyzers

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/dshills/critic/internal/diffparse"
	"github.com/dshills/critic/internal/review"
)

// patternRule flags added lines that match any of its expressions.
type patternRule struct {
	id       string
	message  string
	severity review.Severity
	// languages limits the rule; empty means every language.
	languages []string
	// code rules skip comment-only lines.
	code     bool
	patterns []*regexp.Regexp
}

func compilePatterns(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

var securityRules = []patternRule{
	{
		id:       "hardcoded-secret",
		message:  "Possible hard-coded secret",
		severity: review.SeverityError,
		code:     true,
		patterns: compilePatterns(
			`(?i)\b(password|passwd|secret|api_?key|access_?token|auth_?token|private_?key)\b\s*[:=]\s*["'][^"']{4,}["']`,
			`AKIA[0-9A-Z]{16}`,
			`-----BEGIN (?:RSA |EC |OPENSSH )?PRIVATE KEY-----`,
		),
	},
	{
		id:       "dynamic-exec",
		message:  "Dynamic code or shell execution",
		severity: review.SeverityWarning,
		code:     true,
		patterns: compilePatterns(
			`\beval\s*\(`,
			`\bos\.system\s*\(`,
			`shell\s*=\s*True`,
			`\bchild_process\b`,
		),
	},
	{
		id:       "insecure-tls",
		message:  "TLS certificate verification disabled",
		severity: review.SeverityWarning,
		code:     true,
		patterns: compilePatterns(
			`verify\s*=\s*False`,
			`InsecureSkipVerify:\s*true`,
			`rejectUnauthorized:\s*false`,
		),
	},
}

var antiPatternRules = []patternRule{
	{
		id:        "broad-except",
		message:   "Broad exception handling",
		severity:  review.SeverityWarning,
		languages: []string{"python"},
		code:      true,
		patterns: compilePatterns(
			`^\s*except\s*:`,
			`^\s*except\s+(?:Base)?Exception\s*(?:as\s+\w+\s*)?:`,
		),
	},
	{
		id:       "todo",
		message:  "Unresolved marker left in code",
		severity: review.SeverityInfo,
		patterns: compilePatterns(`\b(TODO|FIXME|HACK|XXX)\b`),
	},
	{
		id:       "debug-print",
		message:  "Debug output left in code",
		severity: review.SeveritySuggestion,
		code:     true,
		patterns: compilePatterns(
			`^\s*print\s*\(`,
			`\bconsole\.log\s*\(`,
			`\bpdb\.set_trace\s*\(`,
			`^\s*breakpoint\s*\(\s*\)`,
		),
	},
	{
		id:       "commented-code",
		message:  "Commented-out code",
		severity: review.SeveritySuggestion,
		patterns: compilePatterns(
			`^\s*(?://|#)\s*(?:def |class |if |for |while |return |import |from \w+ import |func |const |let |var )`,
		),
	},
}

var (
	pythonDefRe  = regexp.MustCompile(`^\s*(?:async\s+)?def\s+(\w+)\s*\(`)
	pythonHintRe = regexp.MustCompile(`\)\s*->`)
)

// Patterns applies built-in regular-expression rules to the added lines of
// each file. Only added lines are examined so untouched code is not
// reported.
type Patterns struct{}

// NewPatterns returns the pattern analyzer.
func NewPatterns() *Patterns { return &Patterns{} }

// Name implements review.Analyzer.
func (*Patterns) Name() string { return "patterns" }

// Analyze implements review.Analyzer.
func (p *Patterns) Analyze(_ context.Context, rec review.ChangeRecord) (*review.AnalysisResult, error) {
	lines := diffparse.Lines(rec.Patch)
	if len(lines) == 0 {
		return nil, nil
	}

	findings := []review.Finding{}
	for _, l := range lines {
		if !l.Added {
			continue
		}
		comment := isCommentLine(l.Content)
		for _, rules := range [][]patternRule{securityRules, antiPatternRules} {
			for _, r := range rules {
				if r.code && comment {
					continue
				}
				if !r.appliesTo(rec.Language) {
					continue
				}
				if r.matches(l.Content) {
					findings = append(findings, review.Finding{
						Body:     fmt.Sprintf("[patterns %s] %s: %s", r.id, r.message, truncate(strings.TrimSpace(l.Content), 80)),
						Severity: r.severity,
						Line:     l.Number,
						Path:     rec.Path,
					})
				}
			}
		}
		if rec.Language == "python" && !comment {
			if m := pythonDefRe.FindStringSubmatch(l.Content); m != nil && !pythonHintRe.MatchString(l.Content) {
				findings = append(findings, review.Finding{
					Body:         fmt.Sprintf("[patterns type-hints] Consider adding type hints to %s()", m[1]),
					Severity:     review.SeveritySuggestion,
					Line:         l.Number,
					Path:         rec.Path,
					SuggestedFix: "Annotate parameters and the return type, e.g. def f(x: int) -> str:",
				})
			}
		}
	}

	return &review.AnalysisResult{
		Findings:  findings,
		Succeeded: true,
	}, nil
}

func (r patternRule) appliesTo(language string) bool {
	return len(r.languages) == 0 || slices.Contains(r.languages, language)
}

func (r patternRule) matches(line string) bool {
	for _, re := range r.patterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

func isCommentLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, prefix := range []string{"#", "//", "/*", "*"} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
