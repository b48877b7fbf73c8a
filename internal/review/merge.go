package review

import (
	"maps"
	"sort"
	"strings"
)

// MergeResults combines the per-analyzer results for one file into a single
// result. Findings keep analyzer order, elapsed times are summed, and the
// merged result succeeds only if every part did. Later metadata keys
// overwrite earlier ones. It returns nil when parts is empty.
func MergeResults(path string, parts []*AnalysisResult) *AnalysisResult {
	if len(parts) == 0 {
		return nil
	}

	merged := &AnalysisResult{
		Path:      path,
		Findings:  []Finding{},
		Succeeded: true,
	}
	var errs []string
	for _, p := range parts {
		if p == nil {
			continue
		}
		merged.Findings = append(merged.Findings, p.Findings...)
		merged.Elapsed += p.Elapsed
		if !p.Succeeded {
			merged.Succeeded = false
		}
		if p.ErrorDetail != "" {
			errs = append(errs, p.ErrorDetail)
		}
		if len(p.Metadata) > 0 {
			if merged.Metadata == nil {
				merged.Metadata = make(map[string]any, len(p.Metadata))
			}
			maps.Copy(merged.Metadata, p.Metadata)
		}
	}
	merged.ErrorDetail = strings.Join(errs, "; ")
	return merged
}

// DetermineStatus applies the overall status policy: no results or all
// failed is a failure; any failed result or any error finding is a partial
// failure; otherwise success.
func DetermineStatus(results []AnalysisResult) OverallStatus {
	if len(results) == 0 {
		return OverallFailure
	}
	failed := 0
	errorFindings := 0
	for i := range results {
		if !results[i].Succeeded {
			failed++
		}
		errorFindings += results[i].ErrorCount()
	}
	switch {
	case failed == len(results):
		return OverallFailure
	case failed > 0 || errorFindings > 0:
		return OverallPartialFailure
	default:
		return OverallSuccess
	}
}

// SortFindings sorts findings by severity (most severe first), then path,
// then line. The sort is stable so analyzer order breaks ties.
func SortFindings(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		ri := SeverityRank(findings[i].Severity)
		rj := SeverityRank(findings[j].Severity)
		if ri != rj {
			return ri > rj
		}
		if findings[i].Path != findings[j].Path {
			return findings[i].Path < findings[j].Path
		}
		return findings[i].Line < findings[j].Line
	})
}
