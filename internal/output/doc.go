// Package output formats review summaries for display or machine consumption.
//
// Four formats are supported:
//   - text: human-readable terminal output (default)
//   - json: the full ReviewSummary
//   - markdown: PR-comment-friendly, with a collapsible section per severity
//   - sarif: SARIF v2.1.0 for upload to GitHub code scanning and other CI tools
//
// Use [GetWriter] to obtain a [Writer] for a format name, or [WriteSummary]
// to write straight to a file or stdout.
package output
