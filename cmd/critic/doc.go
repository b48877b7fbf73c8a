// Critic reviews the files touched by a change set with linters and pattern
// checks, and emits findings with deterministic exit codes.
//
// Usage:
//
//	critic review unstaged               # review working tree changes
//	critic review staged                 # review staged changes
//	critic review uncommitted            # staged and unstaged together
//	critic review commit <sha>           # review a specific commit
//	critic review range origin/main..HEAD
//	critic review diff change.patch      # review a patch file (or - for stdin)
//	critic review pr 42 --post           # review a GitHub pull request
//
// Exit codes: 0 clean, 1 findings at or above --fail-on, 2 usage error,
// 3 authentication error, 4 runtime error.
package main
