package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/lodemill/lodemill/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the artifact cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show artifact cache statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, idx, err := openCache()
		if err != nil {
			return err
		}
		stats, err := idx.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("entries: %d\ntotal size: %d bytes\ntotal hits: %d\n",
			stats.Entries, stats.TotalSize, stats.TotalHits)
		return nil
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove stale cache entries and unreferenced blobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		artifacts, _, err := openCache()
		if err != nil {
			return err
		}
		janitor, err := cache.NewJanitor(artifacts, cfg.Cache.Retention.Duration(), slog.Default())
		if err != nil {
			return err
		}
		result, err := janitor.Prune(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("removed %d entries, %d blobs\n", result.Entries, result.Blobs)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}

// openCache opens the configured artifact cache with its index attached.
func openCache() (*cache.ArtifactCache, *cache.Index, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	codec, err := cache.ParseCodec(cfg.Cache.Codec)
	if err != nil {
		return nil, nil, err
	}
	artifacts, err := cache.New(afero.NewOsFs(), cfg.Cache.Dir, codec, slog.Default())
	if err != nil {
		return nil, nil, err
	}
	idx, err := cache.OpenIndex(filepath.Join(cfg.Cache.Dir, "index.db"), slog.Default())
	if err != nil {
		return nil, nil, err
	}
	artifacts.WithIndex(idx)
	return artifacts, idx, nil
}
