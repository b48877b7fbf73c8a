package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/critic/internal/cache"
	"github.com/dshills/critic/internal/config"
)

var flagCleanupDays int

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the analysis result cache",
}

// openCache opens the configured cache database. force opens it even when
// caching is disabled, so maintenance commands still reach the file.
func openCache(cfg config.Config, force bool) (*cache.Manager, error) {
	c, err := cache.Open(cache.Options{
		Enabled: cfg.Cache.Enabled || force,
		Path:    cfg.Cache.Path,
		TTL:     time.Duration(cfg.Cache.TTLHours) * time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	return c, nil
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached analysis results",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(nil)
		if err != nil {
			return err
		}
		c, err := openCache(cfg, true)
		if err != nil {
			fail(cmd, ExitRuntimeError, err)
			return nil
		}
		defer c.Close()
		if err := c.Clear(cmd.Context()); err != nil {
			fail(cmd, ExitRuntimeError, err)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
		return nil
	},
}

var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove cache entries not used recently",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagCleanupDays < 0 {
			return fmt.Errorf("--days must be >= 0, got %d", flagCleanupDays)
		}
		cfg, err := loadConfig(nil)
		if err != nil {
			return err
		}
		c, err := openCache(cfg, true)
		if err != nil {
			fail(cmd, ExitRuntimeError, err)
			return nil
		}
		defer c.Close()
		n, err := c.Cleanup(cmd.Context(), flagCleanupDays)
		if err != nil {
			fail(cmd, ExitRuntimeError, err)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries unused for %d days.\n", n, flagCleanupDays)
		return nil
	},
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show cache statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(nil)
		if err != nil {
			return err
		}
		c, err := openCache(cfg, false)
		if err != nil {
			fail(cmd, ExitRuntimeError, err)
			return nil
		}
		defer c.Close()
		if !c.Enabled() {
			fmt.Fprintln(cmd.OutOrStdout(), "Cache is disabled.")
			return nil
		}
		stats, err := c.Stats(cmd.Context())
		if err != nil {
			fail(cmd, ExitRuntimeError, err)
			return nil
		}
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheCleanupCmd)
	cacheCmd.AddCommand(cacheShowCmd)
	cacheCleanupCmd.Flags().IntVar(&flagCleanupDays, "days", 30, "Remove entries not accessed within this many days")
}
