package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"threadbot/internal/attachment"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and prune the attachment cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cached file count and size",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, path, err := openConfiguredCache()
			if err != nil {
				return err
			}
			defer cache.Close()

			count, size, err := cache.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s files, %s\n", path, humanize.Comma(count), humanize.Bytes(uint64(size)))
			return nil
		},
	})

	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete cached files older than --older-than (default: attachments.cacheMaxAgeHours)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			maxAge := olderThan
			if maxAge == 0 {
				maxAge = time.Duration(cfg.Attachments.CacheMaxAgeHours) * time.Hour
			}

			cache, _, err := openConfiguredCache()
			if err != nil {
				return err
			}
			defer cache.Close()

			n, err := cache.Prune(cmd.Context(), maxAge)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %s cached files older than %s\n", humanize.Comma(n), maxAge)
			return nil
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 0, "age threshold, e.g. 24h")
	cmd.AddCommand(prune)

	return cmd
}

func openConfiguredCache() (*attachment.Cache, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}
	if cfg.Attachments.CacheDB == "" {
		return nil, "", fmt.Errorf("attachments.cacheDb is not set")
	}
	cache, err := attachment.OpenCache(cfg.Attachments.CacheDB, logger)
	if err != nil {
		return nil, "", err
	}
	return cache, cfg.Attachments.CacheDB, nil
}
