package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/critic/internal/gitctx"
)

const (
	hookMarkerStart = "# >>> critic pre-commit hook >>>"
	hookMarkerEnd   = "# <<< critic pre-commit hook <<<"
)

var (
	hookFailOn   string
	hookFormat   string
	hookParallel bool
)

// hookOptions are the review flags baked into the installed hook.
type hookOptions struct {
	FailOn   string
	Format   string
	Parallel bool
}

func (o hookOptions) command() string {
	parts := []string{"critic", "review", "staged", "--fail-on", o.FailOn, "--format", o.Format}
	if o.Parallel {
		parts = append(parts, "--parallel")
	}
	return strings.Join(parts, " ")
}

// hookSection renders the marked block the hook file carries. Exit code 1
// (findings at or above the threshold) blocks the commit; anything else
// non-zero is reported and the commit goes ahead.
func hookSection(o hookOptions) string {
	lines := []string{
		hookMarkerStart,
		"if command -v critic >/dev/null 2>&1; then",
		"  " + o.command(),
		"  CRITIC_EXIT=$?",
		"  if [ $CRITIC_EXIT -eq 1 ]; then",
		`    echo "critic: findings at or above threshold, commit blocked"`,
		"    exit 1",
		"  elif [ $CRITIC_EXIT -ge 2 ]; then",
		`    echo "critic: review failed (exit $CRITIC_EXIT), allowing commit"`,
		"  fi",
		"fi",
		hookMarkerEnd,
	}
	return strings.Join(lines, "\n") + "\n"
}

// findSection returns the byte range of the marked block including the
// newline after the end marker, or ok=false when there is none.
func findSection(content string) (start, end int, ok bool) {
	start = strings.Index(content, hookMarkerStart)
	if start == -1 {
		return 0, 0, false
	}
	rel := strings.Index(content[start:], hookMarkerEnd)
	if rel == -1 {
		return 0, 0, false
	}
	end = start + rel + len(hookMarkerEnd)
	if end < len(content) && content[end] == '\n' {
		end++
	}
	return start, end, true
}

// withSection returns existing with its critic block replaced by section, or
// with section appended when there is no block yet.
func withSection(existing, section string) string {
	if strings.TrimSpace(existing) == "" {
		return "#!/bin/sh\n" + section
	}
	if start, end, ok := findSection(existing); ok {
		return existing[:start] + section + existing[end:]
	}
	if !strings.HasSuffix(existing, "\n") {
		existing += "\n"
	}
	return existing + section
}

// withoutSection strips the critic block. The second result reports whether
// anything other than a shebang is left.
func withoutSection(existing string) (string, bool) {
	start, end, ok := findSection(existing)
	if ok {
		existing = existing[:start] + existing[end:]
	}
	rest := strings.TrimSpace(existing)
	if strings.HasPrefix(rest, "#!") && !strings.Contains(rest, "\n") {
		rest = ""
	}
	return existing, rest != ""
}

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Manage git pre-commit hook",
}

var hookInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install critic as a git pre-commit hook",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := gitctx.Git{}.HookPath(cmd.Context(), "pre-commit")
		if err != nil {
			fail(cmd, ExitRuntimeError, err)
			return nil
		}

		existing, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			fail(cmd, ExitRuntimeError, fmt.Errorf("reading hook file: %w", err))
			return nil
		}
		content := withSection(string(existing), hookSection(hookOptions{
			FailOn:   hookFailOn,
			Format:   hookFormat,
			Parallel: hookParallel,
		}))

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			fail(cmd, ExitRuntimeError, fmt.Errorf("creating hooks directory: %w", err))
			return nil
		}
		if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
			fail(cmd, ExitRuntimeError, fmt.Errorf("writing hook file: %w", err))
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Installed critic pre-commit hook at %s\n", path)
		return nil
	},
}

var hookUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove critic pre-commit hook",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := gitctx.Git{}.HookPath(cmd.Context(), "pre-commit")
		if err != nil {
			fail(cmd, ExitRuntimeError, err)
			return nil
		}

		existing, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			fmt.Fprintln(cmd.OutOrStdout(), "No pre-commit hook found.")
			return nil
		}
		if err != nil {
			fail(cmd, ExitRuntimeError, fmt.Errorf("reading hook file: %w", err))
			return nil
		}

		content, keep := withoutSection(string(existing))
		if !keep {
			if err := os.Remove(path); err != nil {
				fail(cmd, ExitRuntimeError, fmt.Errorf("removing hook file: %w", err))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed critic pre-commit hook at %s\n", path)
			return nil
		}

		if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
			fail(cmd, ExitRuntimeError, fmt.Errorf("writing hook file: %w", err))
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed critic section from %s\n", path)
		return nil
	},
}

func init() {
	hookCmd.AddCommand(hookInstallCmd)
	hookCmd.AddCommand(hookUninstallCmd)
	hookInstallCmd.Flags().StringVar(&hookFailOn, "fail-on", "error", "Block the commit at this severity (none, error, warning, info, suggestion)")
	hookInstallCmd.Flags().StringVar(&hookFormat, "format", "text", "Output format (text, json, markdown, sarif)")
	hookInstallCmd.Flags().BoolVar(&hookParallel, "parallel", false, "Analyze files concurrently in the hook")
}
