package review

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
)

// Severity represents the severity level of a finding.
type Severity string

const (
	SeverityError      Severity = "error"
	SeverityWarning    Severity = "warning"
	SeverityInfo       Severity = "info"
	SeveritySuggestion Severity = "suggestion"
)

// SeverityRank returns a numeric rank for sorting (higher = more severe).
func SeverityRank(s Severity) int {
	switch s {
	case SeverityError:
		return 4
	case SeverityWarning:
		return 3
	case SeverityInfo:
		return 2
	case SeveritySuggestion:
		return 1
	default:
		return 0
	}
}

// MeetsThreshold returns true if severity is at or above the threshold.
func MeetsThreshold(s Severity, threshold string) bool {
	if threshold == "none" || threshold == "" {
		return false
	}
	return SeverityRank(s) >= SeverityRank(Severity(threshold))
}

// ValidSeverity reports whether s is one of the known severities.
func ValidSeverity(s Severity) bool {
	return SeverityRank(s) > 0
}

// ChangeStatus is the kind of change applied to a file.
type ChangeStatus string

const (
	StatusAdded    ChangeStatus = "added"
	StatusModified ChangeStatus = "modified"
	StatusDeleted  ChangeStatus = "deleted"
	StatusRenamed  ChangeStatus = "renamed"
)

// ChangeRecord describes one file touched by a change-set.
type ChangeRecord struct {
	Path         string       `json:"path"`
	PreviousPath string       `json:"previousPath,omitempty"`
	Status       ChangeStatus `json:"status"`
	Additions    int          `json:"additions"`
	Deletions    int          `json:"deletions"`
	Patch        string       `json:"patch,omitempty"`
	Language     string       `json:"language,omitempty"`
}

// NewChangeRecord builds a record and derives its language from the path.
// Negative counts are clamped to zero; PreviousPath is only kept for renames.
func NewChangeRecord(path, previousPath string, status ChangeStatus, additions, deletions int, patch string) ChangeRecord {
	if status == "" {
		status = StatusModified
	}
	if status != StatusRenamed {
		previousPath = ""
	}
	return ChangeRecord{
		Path:         path,
		PreviousPath: previousPath,
		Status:       status,
		Additions:    max(additions, 0),
		Deletions:    max(deletions, 0),
		Patch:        patch,
		Language:     DetectLanguage(path),
	}
}

// DetectLanguage returns a lowercase language name for a file path, or ""
// when no lexer claims it.
func DetectLanguage(path string) string {
	if path == "" {
		return ""
	}
	lexer := lexers.Match(filepath.Base(path))
	if lexer == nil {
		if ext := filepath.Ext(path); ext != "" {
			lexer = lexers.Match("file" + ext)
		}
	}
	if lexer == nil {
		return ""
	}
	return lexerName(lexer)
}

func lexerName(l chroma.Lexer) string {
	cfg := l.Config()
	if cfg == nil {
		return ""
	}
	return strings.ToLower(cfg.Name)
}

// Finding is a single observation produced by an analyzer.
// A Line of 0 means the finding applies to the whole file.
type Finding struct {
	Body         string   `json:"body"`
	Severity     Severity `json:"severity"`
	Line         int      `json:"line,omitempty"`
	Path         string   `json:"path"`
	SuggestedFix string   `json:"suggestedFix,omitempty"`
	ProducedBy   string   `json:"producedBy,omitempty"`
}

// AnalysisResult is the outcome of analyzing one file, either by a single
// analyzer or merged across all of them.
type AnalysisResult struct {
	Path        string         `json:"path"`
	Findings    []Finding      `json:"findings"`
	Succeeded   bool           `json:"succeeded"`
	ErrorDetail string         `json:"errorDetail,omitempty"`
	Elapsed     time.Duration  `json:"-"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type analysisResultJSON struct {
	Path           string         `json:"path"`
	Findings       []Finding      `json:"findings"`
	Succeeded      bool           `json:"succeeded"`
	ErrorDetail    string         `json:"errorDetail,omitempty"`
	ElapsedSeconds float64        `json:"elapsedSeconds"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// MarshalJSON encodes Elapsed as fractional seconds.
func (r AnalysisResult) MarshalJSON() ([]byte, error) {
	findings := r.Findings
	if findings == nil {
		findings = []Finding{}
	}
	return json.Marshal(analysisResultJSON{
		Path:           r.Path,
		Findings:       findings,
		Succeeded:      r.Succeeded,
		ErrorDetail:    r.ErrorDetail,
		ElapsedSeconds: r.Elapsed.Seconds(),
		Metadata:       r.Metadata,
	})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (r *AnalysisResult) UnmarshalJSON(data []byte) error {
	var raw analysisResultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = AnalysisResult{
		Path:        raw.Path,
		Findings:    raw.Findings,
		Succeeded:   raw.Succeeded,
		ErrorDetail: raw.ErrorDetail,
		Elapsed:     time.Duration(raw.ElapsedSeconds * float64(time.Second)),
		Metadata:    raw.Metadata,
	}
	return nil
}

// ErrorCount returns the number of findings with error severity.
func (r *AnalysisResult) ErrorCount() int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			n++
		}
	}
	return n
}

// ChangeSet identifies the change under review and carries its records.
type ChangeSet struct {
	ID      string         `json:"id"`
	Title   string         `json:"title,omitempty"`
	Source  string         `json:"source"`
	Ref     string         `json:"ref,omitempty"`
	Records []ChangeRecord `json:"-"`
}

// OverallStatus summarizes how a review run went.
type OverallStatus string

const (
	OverallSuccess        OverallStatus = "success"
	OverallPartialFailure OverallStatus = "partial_failure"
	OverallFailure        OverallStatus = "failure"
)

// SeverityCounts holds counts by severity level.
type SeverityCounts struct {
	Error      int `json:"error"`
	Warning    int `json:"warning"`
	Info       int `json:"info"`
	Suggestion int `json:"suggestion"`
}

// Total returns the sum of all counts.
func (c SeverityCounts) Total() int {
	return c.Error + c.Warning + c.Info + c.Suggestion
}

// ReviewSummary is the consolidated outcome of one review run.
type ReviewSummary struct {
	Tool            string           `json:"tool"`
	Version         string           `json:"version"`
	RunID           string           `json:"runId"`
	ChangeSet       ChangeSet        `json:"changeSet"`
	Results         []AnalysisResult `json:"results"`
	OverallStatus   OverallStatus    `json:"overallStatus"`
	Counts          SeverityCounts   `json:"counts"`
	HighestSeverity Severity         `json:"highestSeverity,omitempty"`
	FilesConsidered int              `json:"filesConsidered"`
	Elapsed         time.Duration    `json:"-"`
	ElapsedMs       int64            `json:"elapsedMs"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// Findings returns every finding across results, in result order.
func (s *ReviewSummary) Findings() []Finding {
	var out []Finding
	for _, r := range s.Results {
		out = append(out, r.Findings...)
	}
	return out
}

// FailedResults returns the results that did not succeed.
func (s *ReviewSummary) FailedResults() []AnalysisResult {
	var out []AnalysisResult
	for _, r := range s.Results {
		if !r.Succeeded {
			out = append(out, r)
		}
	}
	return out
}

// ComputeCounts tallies findings by severity and returns the highest one seen.
func ComputeCounts(findings []Finding) (SeverityCounts, Severity) {
	var c SeverityCounts
	var highest Severity
	for _, f := range findings {
		switch f.Severity {
		case SeverityError:
			c.Error++
		case SeverityWarning:
			c.Warning++
		case SeverityInfo:
			c.Info++
		case SeveritySuggestion:
			c.Suggestion++
		}
		if SeverityRank(f.Severity) > SeverityRank(highest) {
			highest = f.Severity
		}
	}
	return c, highest
}
