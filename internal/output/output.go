package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/dshills/critic/internal/review"
)

// Writer writes a summary in a specific format.
type Writer interface {
	Write(w io.Writer, summary *review.ReviewSummary) error
}

// Formats lists the supported format names.
var Formats = []string{"text", "json", "markdown", "sarif"}

// GetWriter returns a writer for the specified format.
func GetWriter(format string) (Writer, error) {
	switch format {
	case "text", "":
		return &TextWriter{}, nil
	case "json":
		return &JSONWriter{}, nil
	case "markdown", "md":
		return &MarkdownWriter{}, nil
	case "sarif":
		return &SARIFWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteSummary writes the summary to outPath, or to stdout when outPath is
// empty.
func WriteSummary(summary *review.ReviewSummary, format, outPath string) error {
	writer, err := GetWriter(format)
	if err != nil {
		return err
	}

	var w io.Writer
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	} else {
		w = os.Stdout
	}

	return writer.Write(w, summary)
}

// severityOrder is the display order, most severe first.
var severityOrder = []review.Severity{
	review.SeverityError,
	review.SeverityWarning,
	review.SeverityInfo,
	review.SeveritySuggestion,
}

func groupBySeverity(findings []review.Finding) map[review.Severity][]review.Finding {
	m := make(map[review.Severity][]review.Finding)
	for _, f := range findings {
		m[f.Severity] = append(m[f.Severity], f)
	}
	for _, fs := range m {
		sort.SliceStable(fs, func(i, j int) bool {
			if fs[i].Path != fs[j].Path {
				return fs[i].Path < fs[j].Path
			}
			return fs[i].Line < fs[j].Line
		})
	}
	return m
}

// splitTag separates a leading "[tag]" from a finding body.
func splitTag(body string) (tag, msg string) {
	if strings.HasPrefix(body, "[") {
		if end := strings.Index(body, "]"); end > 1 {
			return body[1:end], strings.TrimSpace(body[end+1:])
		}
	}
	return "", body
}

func location(f review.Finding) string {
	path := f.Path
	if path == "" {
		path = "unknown"
	}
	if f.Line > 0 {
		return fmt.Sprintf("%s:%d", path, f.Line)
	}
	return path
}

func changeLabel(cs review.ChangeSet) string {
	switch {
	case cs.Title != "" && cs.Ref != "":
		return fmt.Sprintf("%s (%s)", cs.Title, cs.Ref)
	case cs.Title != "":
		return cs.Title
	case cs.Ref != "":
		return cs.Ref
	default:
		return cs.ID
	}
}
