package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/physrag-go/internal/logging"
)

// NewCacheCmd constructs the `physrag cache` command group for inspecting
// and clearing the pipeline caches.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the embedding and query caches",
	}

	cmd.AddCommand(newCacheStatsCmd(), newCacheClearCmd())
	return cmd
}

// newCacheStatsCmd constructs `physrag cache stats`.
func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print hit/miss/eviction counters for both caches",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()

			caches, err := buildCaches(log)
			if err != nil {
				return fmt.Errorf("cache stats: %w", err)
			}

			for name, stats := range caches.StatsByName() {
				fmt.Printf("%s:\n", name)
				fmt.Printf("  entries:   %d\n", stats.Entries)
				fmt.Printf("  hits:      %d\n", stats.Hits)
				fmt.Printf("  misses:    %d\n", stats.Misses)
				fmt.Printf("  evictions: %d\n", stats.Evictions)
				fmt.Printf("  hit rate:  %.2f\n", stats.HitRate)
			}
			return nil
		},
	}
}

// newCacheClearCmd constructs `physrag cache clear`.
func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty both caches, including persisted embeddings",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()

			caches, err := buildCaches(log)
			if err != nil {
				return fmt.Errorf("cache clear: %w", err)
			}

			caches.ClearAll()
			fmt.Println("caches cleared")
			return nil
		},
	}
}
