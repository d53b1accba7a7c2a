package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage rendered graph artifacts",
	Long: `Graphs are stored once per (transaction, heuristic) pair and reused
by later analyses. The store is bounded by artifacts.max_entries and
artifacts.ttl; these commands enforce or reset it by hand.

The artifact index is locked while another txlens process has it open.
Stop a running "txlens serve" that shares artifacts.dir before using
these commands, or they fail with "index is locked".`,
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove expired and excess artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		removed, err := store.Prune()
		if err != nil {
			return fmt.Errorf("prune: %w", err)
		}
		left, err := store.Len()
		if err != nil {
			return fmt.Errorf("count: %w", err)
		}

		fmt.Printf("✓ Removed %d artifacts, %d remaining in %s\n", removed, left, store.Dir())
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every artifact",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		if err := store.Clear(); err != nil {
			return fmt.Errorf("clear: %w", err)
		}

		fmt.Printf("✓ Cleared %s\n", store.Dir())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cachePruneCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
