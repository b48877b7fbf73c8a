// Package review contains the core types and the analysis engine.
//
// It defines ChangeRecord, Finding, AnalysisResult and ReviewSummary, the
// Analyzer contract, and the Engine that filters a change-set, dispatches
// each eligible file to every registered analyzer and merges the outputs.
//
// Files can be analyzed sequentially or on a bounded worker pool. Analyzer
// errors and panics never escape the engine; they become failed results and
// feed the overall status (success, partial_failure or failure).
//
// Rules (rules.go) let callers suppress findings or override their severity
// by producer name or linter code.
package review
