// Package cli wires together the Cobra command tree for the critic binary.
//
// It defines the root command and its subcommands (review, config,
// analyzers, cache, hook, version), binds flags, loads configuration, runs
// the analysis engine and maps the outcome onto exit codes for CI gating.
package cli
