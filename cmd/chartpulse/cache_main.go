package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sawpanic/chartpulse/internal/cache"
)

// openCache builds the tiered cache over the configured blob store. The
// caller must Close it.
func openCache(cmd *cobra.Command) (*cache.TieredCache, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return cache.New(&cfg.Cache)
}

// runCacheStatus prints tier utilization and the configured TTLs.
func runCacheStatus(cmd *cobra.Command, args []string) error {
	store, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	stats := store.Stats()
	if !stats.Enabled {
		fmt.Println("Cache: disabled")
		return nil
	}

	fmt.Printf("Cache:  enabled (%s backend)\n", stats.Backend)
	fmt.Printf("Memory: %d/%d entries (%.1f%%)\n",
		stats.Memory.Entries, stats.Memory.MaxEntries, stats.Memory.UsedPct)
	fmt.Printf("Blob:   %d files, %.2f MB / %d MB\n",
		stats.Blob.Files, stats.Blob.SizeMB, stats.Blob.MaxSizeMB)
	fmt.Printf("TTLs:   data=%ds chart=%ds analysis=%ds\n",
		stats.TTLSeconds["data"], stats.TTLSeconds["chart"], stats.TTLSeconds["analysis"])
	return nil
}

// runCacheClear drops both tiers.
func runCacheClear(cmd *cobra.Command, args []string) error {
	store, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Printf("Removed %d cache entries\n", store.ClearAll())
	return nil
}

// runCacheClearExpired sweeps entries past their bucket TTL.
func runCacheClearExpired(cmd *cobra.Command, args []string) error {
	store, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Printf("Removed %d expired cache entries\n", store.ClearExpired())
	return nil
}
