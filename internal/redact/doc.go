// Package redact removes secrets from review output before it is printed,
// written to disk, or posted to a pull request.
//
// Detection uses regex heuristics covering common secret shapes: API keys,
// JWTs, private keys, AWS credentials, bearer tokens, database URLs with
// inline passwords, and provider-specific tokens (GitHub, Slack, sk- keys).
//
// Path-based redaction is also supported: findings on files matching
// configured doublestar patterns have their text replaced entirely.
package redact
