package output

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dshills/critic/internal/review"
)

// SARIFWriter outputs findings in SARIF v2.1.0 format.
type SARIFWriter struct{}

func (s *SARIFWriter) Write(w io.Writer, summary *review.ReviewSummary) error {
	sarif := buildSARIF(summary)
	data, err := json.MarshalIndent(sarif, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling SARIF: %w", err)
	}
	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("writing SARIF: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}

// SARIF schema types (v2.1.0)

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool        sarifTool         `json:"tool"`
	Results     []sarifResult     `json:"results"`
	Invocations []sarifInvocation `json:"invocations,omitempty"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	InformationURI string      `json:"informationUri"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string              `json:"id"`
	Name             string              `json:"name"`
	ShortDescription sarifMessage        `json:"shortDescription"`
	DefaultConfig    sarifDefaultConfig  `json:"defaultConfiguration"`
	Properties       sarifRuleProperties `json:"properties,omitempty"`
}

type sarifDefaultConfig struct {
	Level string `json:"level"`
}

type sarifRuleProperties struct {
	Tags []string `json:"tags,omitempty"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
	Fixes     []sarifFix      `json:"fixes,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
}

type sarifFix struct {
	Description sarifMessage `json:"description"`
}

type sarifInvocation struct {
	ExecutionSuccessful        bool                `json:"executionSuccessful"`
	ToolExecutionNotifications []sarifNotification `json:"toolExecutionNotifications,omitempty"`
}

type sarifNotification struct {
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
}

func buildSARIF(summary *review.ReviewSummary) sarifLog {
	var (
		rules   []sarifRule
		results = []sarifResult{}
		seen    = make(map[string]bool)
	)

	for _, f := range summary.Findings() {
		tag, msg := splitTag(f.Body)
		ruleID := generateRuleID(f, tag)

		if !seen[ruleID] {
			seen[ruleID] = true
			name := tag
			if name == "" {
				name = f.ProducedBy
			}
			rules = append(rules, sarifRule{
				ID:               ruleID,
				Name:             name,
				ShortDescription: sarifMessage{Text: msg},
				DefaultConfig:    sarifDefaultConfig{Level: severityToLevel(f.Severity)},
				Properties:       sarifRuleProperties{Tags: ruleTags(f, tag)},
			})
		}

		result := sarifResult{
			RuleID:  ruleID,
			Level:   severityToLevel(f.Severity),
			Message: sarifMessage{Text: msg},
		}
		if f.Path != "" {
			result.Locations = []sarifLocation{artifact(f.Path, f.Line)}
		}
		if f.SuggestedFix != "" {
			result.Fixes = append(result.Fixes, sarifFix{
				Description: sarifMessage{Text: f.SuggestedFix},
			})
		}
		results = append(results, result)
	}

	inv := sarifInvocation{ExecutionSuccessful: summary.OverallStatus != review.OverallFailure}
	for _, r := range summary.FailedResults() {
		inv.ToolExecutionNotifications = append(inv.ToolExecutionNotifications, sarifNotification{
			Level:     "error",
			Message:   sarifMessage{Text: r.ErrorDetail},
			Locations: []sarifLocation{artifact(r.Path, 0)},
		})
	}

	return sarifLog{
		Version: "2.1.0",
		Schema:  "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json",
		Runs: []sarifRun{
			{
				Tool: sarifTool{
					Driver: sarifDriver{
						Name:           summary.Tool,
						Version:        summary.Version,
						InformationURI: "https://github.com/dshills/critic",
						Rules:          rules,
					},
				},
				Results:     results,
				Invocations: []sarifInvocation{inv},
			},
		},
	}
}

func artifact(path string, line int) sarifLocation {
	loc := sarifLocation{PhysicalLocation: sarifPhysicalLocation{
		ArtifactLocation: sarifArtifactLocation{URI: path},
	}}
	if line > 0 {
		loc.PhysicalLocation.Region = &sarifRegion{StartLine: line}
	}
	return loc
}

// severityToLevel maps critic severity to SARIF level.
func severityToLevel(s review.Severity) string {
	switch s {
	case review.SeverityError:
		return "error"
	case review.SeverityWarning:
		return "warning"
	default:
		return "note"
	}
}

// generateRuleID returns "critic/<producer>/<code>" when the body carries a
// tag like "flake8 E501", otherwise a short hash of the body.
func generateRuleID(f review.Finding, tag string) string {
	producer := f.ProducedBy
	if producer == "" {
		producer = "unknown"
	}
	if fields := strings.Fields(tag); len(fields) > 0 {
		return fmt.Sprintf("critic/%s/%s", producer, strings.Join(fields, "/"))
	}
	h := sha256.Sum256([]byte(f.Body))
	return fmt.Sprintf("critic/%s/%x", producer, h[:4])
}

func ruleTags(f review.Finding, tag string) []string {
	var tags []string
	if f.ProducedBy != "" {
		tags = append(tags, f.ProducedBy)
	}
	if fields := strings.Fields(tag); len(fields) > 0 && fields[0] != f.ProducedBy {
		tags = append(tags, fields[0])
	}
	return tags
}
