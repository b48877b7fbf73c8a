package gitctx

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/dshills/critic/internal/diffparse"
	"github.com/dshills/critic/internal/review"
)

// Mode selects which changes are reviewed.
type Mode string

const (
	ModeUnstaged    Mode = "unstaged"
	ModeStaged      Mode = "staged"
	ModeUncommitted Mode = "uncommitted"
	ModeCommit      Mode = "commit"
	ModeRange       Mode = "range"
)

// Request describes one diff to collect.
type Request struct {
	Mode Mode
	// Rev is the commit for ModeCommit or "a..b" for ModeRange.
	Rev string
	// MergeBase turns "a..b" into "a...b" so only b's side is shown.
	MergeBase    bool
	ContextLines int
	// Paths limits the diff to these pathspecs.
	Paths []string
}

// RepoMeta contains git repository metadata.
type RepoMeta struct {
	Root   string
	Head   string
	Branch string
}

// Git runs git commands in Dir, or the current directory when Dir is empty.
type Git struct {
	Dir string
}

// RepoMeta collects repository metadata from git.
func (g Git) RepoMeta(ctx context.Context) (RepoMeta, error) {
	root, err := g.output(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return RepoMeta{}, fmt.Errorf("not a git repository: %w", err)
	}
	// A repository with no commits has neither.
	head, _ := g.output(ctx, "rev-parse", "HEAD")
	branch, _ := g.output(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	return RepoMeta{
		Root:   strings.TrimSpace(root),
		Head:   strings.TrimSpace(head),
		Branch: strings.TrimSpace(branch),
	}, nil
}

// HookPath returns the path of the named hook in the repository's git
// directory. The file need not exist.
func (g Git) HookPath(ctx context.Context, name string) (string, error) {
	out, err := g.output(ctx, "rev-parse", "--git-dir")
	if err != nil {
		return "", fmt.Errorf("not a git repository: %w", err)
	}
	gitDir := strings.TrimSpace(out)
	if !filepath.IsAbs(gitDir) && g.Dir != "" {
		gitDir = filepath.Join(g.Dir, gitDir)
	}
	return filepath.Join(gitDir, "hooks", name), nil
}

// Diff returns the raw unified diff for req.
func (g Git) Diff(ctx context.Context, req Request) (string, error) {
	tail := diffArgs(req)
	switch req.Mode {
	case ModeUnstaged:
		return g.diff(ctx, append([]string{"diff"}, tail...))
	case ModeStaged:
		return g.diff(ctx, append([]string{"diff", "--cached"}, tail...))
	case ModeUncommitted:
		out, err := g.diff(ctx, append([]string{"diff", "HEAD"}, tail...))
		if err == nil {
			return out, nil
		}
		// No HEAD yet: everything staged is new.
		return g.diff(ctx, append([]string{"diff", "--cached"}, tail...))
	case ModeCommit:
		if req.Rev == "" {
			return "", errors.New("commit mode needs a revision")
		}
		out, err := g.diff(ctx, append([]string{"diff", req.Rev + "~1", req.Rev}, tail...))
		if err == nil {
			return out, nil
		}
		// Root commit has no parent.
		return g.diff(ctx, append([]string{"show", "--format=", req.Rev}, tail...))
	case ModeRange:
		if !strings.Contains(req.Rev, "..") {
			return "", fmt.Errorf("range %q must look like a..b", req.Rev)
		}
		rev := req.Rev
		if req.MergeBase && !strings.Contains(rev, "...") {
			rev = strings.Replace(rev, "..", "...", 1)
		}
		return g.diff(ctx, append([]string{"diff", rev}, tail...))
	default:
		return "", fmt.Errorf("unknown review mode %q", req.Mode)
	}
}

// ChangeSet collects the diff for req and parses it into a review.ChangeSet.
func (g Git) ChangeSet(ctx context.Context, req Request) (review.ChangeSet, error) {
	meta, err := g.RepoMeta(ctx)
	if err != nil {
		return review.ChangeSet{}, err
	}
	diff, err := g.Diff(ctx, req)
	if err != nil {
		return review.ChangeSet{}, err
	}

	ref := meta.Head
	title := fmt.Sprintf("%s changes", req.Mode)
	switch req.Mode {
	case ModeCommit:
		ref = req.Rev
		title = "commit " + req.Rev
	case ModeRange:
		ref = req.Rev
		title = "range " + req.Rev
	}
	if meta.Branch != "" && meta.Branch != "HEAD" && req.Mode != ModeCommit && req.Mode != ModeRange {
		title += " on " + meta.Branch
	}

	return review.ChangeSet{
		ID:      changeSetID(string(req.Mode), ref, diff),
		Title:   title,
		Source:  "git",
		Ref:     ref,
		Records: diffparse.Parse(diff),
	}, nil
}

// FromText builds a ChangeSet from diff text that did not come from git,
// such as a patch file or stdin.
func FromText(label, diff string) review.ChangeSet {
	return review.ChangeSet{
		ID:      changeSetID("diff", label, diff),
		Title:   label,
		Source:  "diff",
		Records: diffparse.Parse(diff),
	}
}

// changeSetID is stable for identical input, so repeated runs over the same
// change share an ID.
func changeSetID(mode, ref, diff string) string {
	sum := sha256.Sum256([]byte(mode + "\x00" + ref + "\x00" + diff))
	return mode + "-" + hex.EncodeToString(sum[:6])
}

func diffArgs(req Request) []string {
	var args []string
	if req.ContextLines > 0 {
		args = append(args, fmt.Sprintf("-U%d", req.ContextLines))
	}
	args = append(args, "--no-color", "--no-ext-diff", "-M")
	if len(req.Paths) > 0 {
		args = append(args, "--")
		args = append(args, req.Paths...)
	}
	return args
}

func (g Git) diff(ctx context.Context, args []string) (string, error) {
	out, err := g.output(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return out, nil
}

func (g Git) output(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.Dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%w: %s", err, msg)
		}
		return "", err
	}
	return string(out), nil
}
