package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/dshills/critic/internal/review"
)

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &JSONWriter{}
	if err := w.Write(&buf, sampleSummary()); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	var parsed review.ReviewSummary
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}

	if parsed.Tool != "critic" {
		t.Errorf("Tool = %q, want %q", parsed.Tool, "critic")
	}
	if len(parsed.Results) != 3 {
		t.Fatalf("Results count = %d, want 3", len(parsed.Results))
	}
	if parsed.Results[0].Findings[0].Body != "[flake8 E501] line too long (99 > 88 characters)" {
		t.Errorf("Finding body = %q", parsed.Results[0].Findings[0].Body)
	}
	if parsed.Counts.Error != 1 || parsed.HighestSeverity != review.SeverityError {
		t.Errorf("Counts = %+v, highest = %q", parsed.Counts, parsed.HighestSeverity)
	}
	if parsed.OverallStatus != review.OverallPartialFailure {
		t.Errorf("OverallStatus = %q", parsed.OverallStatus)
	}
	if parsed.ElapsedMs != 1500 {
		t.Errorf("ElapsedMs = %d, want 1500", parsed.ElapsedMs)
	}
}

func TestJSONWriter_EmptyFindingsArray(t *testing.T) {
	var buf bytes.Buffer
	w := &JSONWriter{}
	if err := w.Write(&buf, sampleSummary()); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	var raw struct {
		Results []struct {
			Findings json.RawMessage `json:"findings"`
		} `json:"results"`
	}
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if got := string(raw.Results[2].Findings); got != "[]" {
		t.Errorf("failed result findings = %s, want []", got)
	}
}
