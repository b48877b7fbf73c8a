// Package gitctx collects diffs from a git repository and turns them into
// review change sets.
//
// Five modes are supported: unstaged, staged, uncommitted, a single commit
// and a revision range. Git is invoked as a subprocess in [Git.Dir] and its
// output is parsed with the diffparse package.
package gitctx
