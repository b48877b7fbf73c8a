package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/dshills/critic/internal/review"
)

// TextWriter outputs a human-readable text report.
type TextWriter struct{}

func (t *TextWriter) Write(w io.Writer, summary *review.ReviewSummary) error {
	ew := &errWriter{w: w}
	counts := summary.Counts
	total := counts.Total()

	ew.printf("Critic Code Review: %s\n", changeLabel(summary.ChangeSet))
	if summary.ChangeSet.Source != "" {
		ew.printf("Source: %s\n", summary.ChangeSet.Source)
	}
	ew.printf("Status: %s | Files analyzed: %d of %d eligible\n",
		summary.OverallStatus, len(summary.Results), summary.FilesConsidered)
	ew.println(strings.Repeat("─", 60))
	ew.printf("Findings: %d total", total)
	if total > 0 {
		ew.printf(" (%d error, %d warning, %d info, %d suggestion)",
			counts.Error, counts.Warning, counts.Info, counts.Suggestion)
	}
	ew.println("")
	ew.println(strings.Repeat("─", 60))

	failed := summary.FailedResults()
	if total == 0 && len(failed) == 0 {
		ew.println("\nNo issues found. Looks good!")
		ew.printf("\nCompleted in %dms\n", summary.ElapsedMs)
		return ew.err
	}

	grouped := groupBySeverity(summary.Findings())
	for _, sev := range severityOrder {
		findings := grouped[sev]
		if len(findings) == 0 {
			continue
		}

		ew.printf("\n%s %s\n", severityIcon(sev), strings.ToUpper(string(sev)))
		ew.println(strings.Repeat("─", 40))

		for _, f := range findings {
			tag, msg := splitTag(f.Body)
			if tag == "" {
				tag = f.ProducedBy
			}
			ew.printf("\n  %s  [%s]\n", location(f), tag)
			for _, line := range wrapText(msg, 70) {
				ew.printf("    %s\n", line)
			}
			if f.SuggestedFix != "" {
				ew.println("  Suggestion:")
				for _, line := range wrapText(f.SuggestedFix, 70) {
					ew.printf("    %s\n", line)
				}
			}
		}
	}

	if len(failed) > 0 {
		ew.printf("\n[x] FAILED FILES (%d)\n", len(failed))
		ew.println(strings.Repeat("─", 40))
		for _, r := range failed {
			ew.printf("  %s: %s\n", r.Path, r.ErrorDetail)
		}
	}

	ew.printf("\n%s\n", strings.Repeat("─", 60))
	ew.printf("Completed in %dms\n", summary.ElapsedMs)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}

func severityIcon(s review.Severity) string {
	switch s {
	case review.SeverityError:
		return "[!!]"
	case review.SeverityWarning:
		return "[!]"
	case review.SeverityInfo:
		return "[i]"
	case review.SeveritySuggestion:
		return "[-]"
	default:
		return "[?]"
	}
}

func wrapText(text string, width int) []string {
	if len(text) <= width {
		return []string{text}
	}
	var lines []string
	var current strings.Builder
	for _, word := range strings.Fields(text) {
		if current.Len()+len(word)+1 > width && current.Len() > 0 {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}
