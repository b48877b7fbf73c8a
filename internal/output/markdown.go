package output

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"

	"github.com/dshills/critic/internal/review"
)

// MarkdownWriter outputs a PR-comment-friendly markdown report.
type MarkdownWriter struct{}

func (m *MarkdownWriter) Write(w io.Writer, summary *review.ReviewSummary) error {
	ew := &errWriter{w: w}
	c := summary.Counts
	total := c.Total()

	ew.printf("## Critic Code Review\n\n")
	ew.printf("**%s** | status: `%s` | %d file(s) analyzed\n\n",
		changeLabel(summary.ChangeSet), summary.OverallStatus, len(summary.Results))

	ew.printf("| Severity | Count |\n")
	ew.printf("|----------|-------|\n")
	ew.printf("| Error | %d |\n", c.Error)
	ew.printf("| Warning | %d |\n", c.Warning)
	ew.printf("| Info | %d |\n", c.Info)
	ew.printf("| Suggestion | %d |\n", c.Suggestion)
	ew.printf("| **Total** | **%d** |\n\n", total)

	if total == 0 && len(summary.FailedResults()) == 0 {
		ew.println("No issues found. :white_check_mark:")
		return ew.err
	}

	grouped := groupBySeverity(summary.Findings())
	for _, sev := range severityOrder {
		findings := grouped[sev]
		if len(findings) == 0 {
			continue
		}

		ew.printf("<details>\n<summary>%s %s (%d)</summary>\n\n",
			mdSeverityIcon(sev), strings.ToUpper(string(sev)), len(findings))

		for _, f := range findings {
			tag, msg := splitTag(f.Body)
			if tag == "" {
				tag = f.ProducedBy
			}
			ew.printf("**`%s`** | %s\n\n", location(f), tag)
			ew.printf("%s\n\n", msg)

			if f.SuggestedFix != "" {
				ew.printf("**Suggestion:**\n\n")
				if looksLikeCode(f.SuggestedFix) {
					ew.printf("```%s\n%s\n```\n\n", fenceLang(f.Path), f.SuggestedFix)
				} else {
					ew.printf("> %s\n\n", strings.ReplaceAll(f.SuggestedFix, "\n", "\n> "))
				}
			}

			ew.printf("---\n\n")
		}

		ew.printf("</details>\n\n")
	}

	if failed := summary.FailedResults(); len(failed) > 0 {
		ew.printf("### :x: Failed files\n\n")
		for _, r := range failed {
			ew.printf("- `%s`: %s\n", r.Path, r.ErrorDetail)
		}
		ew.println("")
	}

	ew.printf("*Reviewed in %dms*\n", summary.ElapsedMs)
	return ew.err
}

func mdSeverityIcon(s review.Severity) string {
	switch s {
	case review.SeverityError:
		return ":red_circle:"
	case review.SeverityWarning:
		return ":orange_circle:"
	case review.SeverityInfo:
		return ":large_blue_circle:"
	case review.SeveritySuggestion:
		return ":white_circle:"
	default:
		return ":grey_question:"
	}
}

func looksLikeCode(s string) bool {
	codeIndicators := []string{
		"func ", "if ", "for ", "return ", "var ", "const ",
		"def ", "class ", "import ", "from ",
		"{", "}", "=>", "->", ":=", "==",
		"()", "[];",
	}
	for _, indicator := range codeIndicators {
		if strings.Contains(s, indicator) {
			return true
		}
	}
	return false
}

// fenceLang returns the primary chroma alias for path, which GitHub's
// highlighter also understands.
func fenceLang(path string) string {
	if path == "" {
		return ""
	}
	lexer := lexers.Match(filepath.Base(path))
	if lexer == nil {
		return ""
	}
	if cfg := lexer.Config(); cfg != nil && len(cfg.Aliases) > 0 {
		return cfg.Aliases[0]
	}
	return ""
}
