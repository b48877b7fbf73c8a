package cli

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/critic/internal/analyzers"
)

var analyzersCmd = &cobra.Command{
	Use:   "analyzers",
	Short: "Inspect the configured analyzers",
}

var analyzersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enabled analyzers in run order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(nil)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		list := analyzers.FromConfig(cfg, nil)
		if len(list) == 0 {
			fmt.Fprintln(out, "No analyzers enabled.")
			return nil
		}
		for _, a := range list {
			fmt.Fprintf(out, "%s\n", a.Name())
			if a.Name() == "static" {
				fmt.Fprintf(out, "  tools: %s\n", strings.Join(cfg.Static.Tools, ", "))
			}
		}
		return nil
	},
}

var analyzersDoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the configured linters are installed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(nil)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !cfg.Static.Enabled || len(cfg.Static.Tools) == 0 {
			fmt.Fprintln(out, "Static analysis is disabled.")
			return nil
		}

		found := 0
		for _, tool := range cfg.Static.Tools {
			path, err := exec.LookPath(tool)
			if err != nil {
				fmt.Fprintf(out, "MISSING: %s (findings from it will be skipped)\n", tool)
				continue
			}
			found++
			fmt.Fprintf(out, "OK: %s (%s)\n", tool, path)
		}
		if found == 0 {
			fail(cmd, ExitRuntimeError, fmt.Errorf("none of the configured linters (%s) is installed", strings.Join(cfg.Static.Tools, ", ")))
		}
		return nil
	},
}

func init() {
	analyzersCmd.AddCommand(analyzersListCmd)
	analyzersCmd.AddCommand(analyzersDoctorCmd)
}
