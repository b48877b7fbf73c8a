package redact

import (
	"regexp"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dshills/critic/internal/review"
)

const placeholder = "[REDACTED]"

// pathPlaceholder replaces the whole body of a finding on a sensitive path.
const pathPlaceholder = placeholder + " (finding redacted by path policy)"

type rule struct {
	kind string
	re   *regexp.Regexp
}

// rules are checked in order; earlier, more specific rules win because
// their matches are already replaced when later ones run.
var rules = []rule{
	{"private-key", regexp.MustCompile(`-----BEGIN\s+(?:RSA\s+|EC\s+|OPENSSH\s+|DSA\s+)?PRIVATE KEY-----`)},
	{"aws-access-key", regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`)},
	{"aws-secret-key", regexp.MustCompile(`(?i)aws[_-]?secret[_-]?access[_-]?key\s*[:=]\s*["']?[A-Za-z0-9/+=]{40}["']?`)},
	{"github-token", regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9_]{36,}`)},
	{"slack-token", regexp.MustCompile(`\bxox[bporas]-[A-Za-z0-9-]{10,}`)},
	{"jwt", regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`)},
	{"bearer", regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._~+/-]{20,}=*`)},
	{"api-key", regexp.MustCompile(`\bsk-(?:ant-|proj-)?[A-Za-z0-9_-]{20,}`)},
	{"dsn-credentials", regexp.MustCompile(`(?i)\b(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqp)://[^:\s/]+:[^@\s]+@`)},
	{"api-key", regexp.MustCompile(`(?i)\b(?:api[_-]?key|apikey|api[_-]?secret)\s*[:=]\s*["']?[A-Za-z0-9/+=_-]{20,}["']?`)},
	{"assignment", regexp.MustCompile(`(?i)\b(?:secret|token|password|passwd|pwd|credential)s?\s*[:=]\s*["'][^"']{8,}["']`)},
	{"hex-secret", regexp.MustCompile(`(?i)\b(?:key|secret|token)\s*[:=]\s*["']?[0-9a-f]{32,}["']?`)},
}

// Report counts redactions by rule kind.
type Report map[string]int

// Total returns the number of redactions.
func (r Report) Total() int {
	n := 0
	for _, c := range r {
		n += c
	}
	return n
}

// Secrets replaces detected secrets in text with [REDACTED].
func Secrets(text string) string {
	return scrub(text, nil)
}

func scrub(text string, report Report) string {
	if text == "" {
		return text
	}
	for _, r := range rules {
		n := 0
		text = r.re.ReplaceAllStringFunc(text, func(string) string {
			n++
			return placeholder
		})
		if n > 0 && report != nil {
			report[r.kind] += n
		}
	}
	return text
}

// ShouldRedactPath reports whether path matches any of the doublestar
// patterns.
func ShouldRedactPath(path string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}

// Summary scrubs every finding and error detail in s in place and reports
// what it replaced. Findings on paths matching redactPaths lose their text
// entirely and are counted under "path".
func Summary(s *review.ReviewSummary, redactPaths []string) Report {
	report := Report{}
	if s == nil {
		return report
	}
	for i := range s.Results {
		r := &s.Results[i]
		r.ErrorDetail = scrub(r.ErrorDetail, report)
		wholeFile := ShouldRedactPath(r.Path, redactPaths)
		for j := range r.Findings {
			f := &r.Findings[j]
			if wholeFile || ShouldRedactPath(f.Path, redactPaths) {
				f.Body = pathPlaceholder
				f.SuggestedFix = ""
				report["path"]++
				continue
			}
			f.Body = scrub(f.Body, report)
			f.SuggestedFix = scrub(f.SuggestedFix, report)
		}
	}
	return report
}
