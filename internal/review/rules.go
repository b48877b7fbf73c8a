package review

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rules adjusts analyzer output after it is merged.
//
// Keys in SeverityOverrides and Suppress match a finding when they equal its
// producer name, the tag in its leading "[...]" (for example "flake8 E501"),
// or the last word of that tag ("E501").
type Rules struct {
	SeverityOverrides map[string]Severity `yaml:"severityOverrides,omitempty" json:"severityOverrides,omitempty"`
	Suppress          []string            `yaml:"suppress,omitempty" json:"suppress,omitempty"`
}

// LoadRules loads a rules file from disk. JSON files are accepted since
// they are valid YAML. Returns nil Rules and nil error if path is empty.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}
	for key, sev := range rules.SeverityOverrides {
		if !ValidSeverity(sev) {
			return nil, fmt.Errorf("rules file: override %q has invalid severity %q", key, sev)
		}
	}
	return &rules, nil
}

// Empty reports whether the rules change nothing.
func (r *Rules) Empty() bool {
	return r == nil || (len(r.SeverityOverrides) == 0 && len(r.Suppress) == 0)
}

// Apply rewrites the findings of each result in place: suppressed findings
// are dropped and overridden severities replaced.
func (r *Rules) Apply(results []AnalysisResult) {
	if r.Empty() {
		return
	}
	suppress := make(map[string]bool, len(r.Suppress))
	for _, s := range r.Suppress {
		suppress[s] = true
	}

	for i := range results {
		kept := results[i].Findings[:0]
		for _, f := range results[i].Findings {
			keys := findingKeys(f)
			if matchesAny(keys, suppress) {
				continue
			}
			for _, k := range keys {
				if sev, ok := r.SeverityOverrides[k]; ok {
					f.Severity = sev
					break
				}
			}
			kept = append(kept, f)
		}
		results[i].Findings = kept
	}
}

// findingKeys returns the match keys for a finding, most specific first.
func findingKeys(f Finding) []string {
	var keys []string
	if strings.HasPrefix(f.Body, "[") {
		if end := strings.Index(f.Body, "]"); end > 1 {
			tag := f.Body[1:end]
			keys = append(keys, tag)
			if fields := strings.Fields(tag); len(fields) > 1 {
				keys = append(keys, fields[len(fields)-1])
			}
		}
	}
	if f.ProducedBy != "" {
		keys = append(keys, f.ProducedBy)
	}
	return keys
}

func matchesAny(keys []string, set map[string]bool) bool {
	for _, k := range keys {
		if set[k] {
			return true
		}
	}
	return false
}
