package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"threadbot/internal/attachment"
	"threadbot/internal/channel"
	"threadbot/internal/config"
	"threadbot/internal/provider"
)

// checker tallies check results as they are printed.
type checker struct {
	passed, failed, warned int
}

func (c *checker) pass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
	c.passed++
}

func (c *checker) fail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
	c.failed++
}

func (c *checker) warn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
	c.warned++
}

func checkCmd() *cobra.Command {
	var online bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run diagnostic checks on the threadbot setup",
		Long: `Verifies configuration, credentials, the attachment cache and the
metrics port. With --online, also calls Slack and Anthropic.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("threadbot check v%s\n\n", version)

			c := &checker{}
			cfg, err := loadConfig()
			if err != nil {
				c.fail("Config", err.Error())
				return fmt.Errorf("config: %w", err)
			}
			c.pass("Config", resolveConfigPath())

			if err := config.CheckCredentials(cfg); err != nil {
				c.fail("Credentials", err.Error())
			} else {
				c.pass("Credentials", "slack and anthropic set")
			}

			prompt, err := cfg.SystemPrompt()
			switch {
			case err != nil:
				c.fail("System prompt", err.Error())
			case prompt == "":
				c.warn("System prompt", "none configured")
			default:
				c.pass("System prompt", humanize.Bytes(uint64(len(prompt))))
			}

			if cfg.Attachments.CacheEnabled {
				if detail, err := checkCache(cmd.Context(), cfg.Attachments.CacheDB); err != nil {
					c.fail("Attachment cache", err.Error())
				} else {
					c.pass("Attachment cache", detail)
				}
			} else {
				c.warn("Attachment cache", "disabled")
			}

			if cfg.Metrics.Enabled {
				if err := checkAddr(cfg.Metrics.Addr); err != nil {
					c.warn("Metrics addr", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Addr, err))
				} else {
					c.pass("Metrics addr", cfg.Metrics.Addr+" available")
				}
			}

			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					c.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
				} else {
					c.pass("Log file", cfg.General.LogFile)
				}
			}

			if online && c.failed == 0 {
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()

				slack := channel.NewSlack(channel.SlackConfig{
					BotToken: cfg.Slack.BotToken,
					AppToken: cfg.Slack.AppToken,
					Logger:   logger,
				})
				if err := slack.Connect(ctx); err != nil {
					c.fail("Slack", err.Error())
				} else {
					c.pass("Slack", "bot user "+slack.BotUserID())
				}

				model := provider.NewFactory(cfg.Anthropic, logger).Default()
				if err := model.Healthy(ctx); err != nil {
					c.fail("Anthropic", err.Error())
				} else {
					c.pass("Anthropic", model.Name())
				}
			}

			fmt.Printf("\nResults: %d passed, %d warnings, %d failed\n", c.passed, c.warned, c.failed)
			if c.failed > 0 {
				return fmt.Errorf("%d check(s) failed", c.failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&online, "online", false, "also verify Slack and Anthropic credentials over the network")
	return cmd
}

// checkCache opens (and migrates) the cache database and reports its size.
func checkCache(ctx context.Context, dbPath string) (string, error) {
	cache, err := attachment.OpenCache(dbPath, logger)
	if err != nil {
		return "", err
	}
	defer cache.Close()

	count, size, err := cache.Stats(ctx)
	if err != nil {
		return "", fmt.Errorf("stats: %w", err)
	}
	return fmt.Sprintf("%s (%d files, %s)", dbPath, count, humanize.Bytes(uint64(size))), nil
}

func checkAddr(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}
