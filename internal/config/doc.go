// Package config loads and validates critic configuration.
//
// Values are resolved in order: built-in defaults, then the YAML config file
// ($XDG_CONFIG_HOME/critic/config.yaml or CRITIC_CONFIG), then CRITIC_*
// environment variables, then CLI flag overrides. Keys missing from the file
// keep their defaults. The merged result is checked with validator struct
// tags; exclusion globs must be valid doublestar patterns.
//
// The GitHub token is read from GITHUB_TOKEN only and is never saved.
package config
