package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"threadbot/internal/attachment"
	"threadbot/internal/bot"
	"threadbot/internal/bus"
	"threadbot/internal/channel"
	"threadbot/internal/config"
	"threadbot/internal/metrics"
	"threadbot/internal/provider"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
	envFile    string
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "threadbot",
		Short: "threadbot: Claude in Slack threads",
		Long:  "threadbot answers Slack threads that mention it, replaying the whole thread to Claude on every reply.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile()
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json or config.yaml (default: ~/.threadbot/config.json)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config, if present")

	root.AddCommand(runCmd())
	root.AddCommand(initCmd())
	root.AddCommand(setupCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(configCmd())
	root.AddCommand(cacheCmd())
	root.AddCommand(serviceCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("threadbot", version)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadEnvFile loads the dotenv file without overriding variables that are
// already set.
func loadEnvFile() error {
	if envFile == "" {
		return nil
	}
	if _, err := os.Stat(envFile); err != nil {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("load %s: %w", envFile, err)
	}
	return nil
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return config.ExpandPath(configPath)
	}
	return config.DefaultConfigPath()
}

// loadConfig reads the config file. Without --config and without a file at
// the default path, the environment alone configures the bot.
func loadConfig() (*config.Config, error) {
	path := resolveConfigPath()
	if configPath == "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			logger.Info("no config file, using environment", "path", path)
			return config.FromEnv()
		}
	}
	return config.Load(path)
}

// newLogger builds the process logger from config. The returned closer
// releases the log file, if any.
func newLogger(cfg config.GeneralConfig) (*slog.Logger, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}

	var w io.Writer = os.Stderr
	closer := func() {}
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, nil, fmt.Errorf("log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closer = func() { f.Close() }
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), closer, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Slack and answer threads",
		Long:  "Connects over Socket Mode and serves events until interrupted. Press Ctrl+C to stop.",
		RunE:  runBot,
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.CheckCredentials(cfg); err != nil {
		return err
	}

	log, closeLog, err := newLogger(cfg.General)
	if err != nil {
		return err
	}
	defer closeLog()
	logger = log

	systemPrompt, err := cfg.SystemPrompt()
	if err != nil {
		return err
	}
	if systemPrompt == "" {
		logger.Warn("no system prompt configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slack := channel.NewSlack(channel.SlackConfig{
		BotToken: cfg.Slack.BotToken,
		AppToken: cfg.Slack.AppToken,
		Debug:    cfg.Slack.Debug,
		Logger:   logger,
	})
	if err := slack.Connect(ctx); err != nil {
		return err
	}

	var cache *attachment.Cache
	if cfg.Attachments.CacheEnabled {
		cache, err = attachment.OpenCache(cfg.Attachments.CacheDB, logger)
		if err != nil {
			return fmt.Errorf("attachment cache: %w", err)
		}
		defer cache.Close()
	}

	model := provider.NewFactory(cfg.Anthropic, logger).Default()
	if err := model.Healthy(ctx); err != nil {
		logger.Warn("model unhealthy at startup", "model", model.Name(), "err", err)
	} else {
		logger.Info("model healthy", "model", model.Name())
	}

	handler := bot.NewHandler(bot.HandlerConfig{
		Chat:  slack,
		Model: model,
		Attachments: attachment.NewGateway(attachment.GatewayConfig{
			Fetcher:  slack,
			Cache:    cache,
			MaxBytes: cfg.Attachments.MaxBytes,
			Logger:   logger,
		}),
		Limiter:      bot.NewRateLimiter(cfg.Bot.RateBurst, cfg.Bot.RatePerMinute),
		SystemPrompt: systemPrompt,
		Logger:       logger,
	})

	eventBus := bus.New(cfg.Bot.BusBuffer, logger)
	dispatcher := bot.NewDispatcher(bot.DispatcherConfig{
		Bus:         eventBus,
		Handler:     handler,
		Concurrency: cfg.Bot.Concurrency,
		Logger:      logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dispatcher.Run(gctx)
		return nil
	})
	g.Go(func() error {
		defer eventBus.Close()
		return slack.Start(gctx, eventBus)
	})
	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.Metrics.Addr, logger)
		})
	}
	if cache != nil && cfg.Attachments.CacheMaxAgeHours > 0 {
		maxAge := time.Duration(cfg.Attachments.CacheMaxAgeHours) * time.Hour
		g.Go(func() error {
			pruneLoop(gctx, cache, maxAge)
			return nil
		})
	}

	logger.Info("threadbot started", "version", version, "bot_user", slack.BotUserID())
	err = g.Wait()
	logger.Info("threadbot stopped")
	return err
}

// pruneLoop drops stale attachment bytes at startup and then hourly.
func pruneLoop(ctx context.Context, cache *attachment.Cache, maxAge time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		if n, err := cache.Prune(ctx, maxAge); err != nil {
			logger.Warn("attachment cache prune failed", "err", err)
		} else if n > 0 {
			logger.Info("attachment cache pruned", "removed", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Long:  "Writes the default config. Credentials stay as ${VAR} placeholders resolved from the environment at startup.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. anthropic.model)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. bot.concurrency 8)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			paths := config.ListPaths(config.Sanitize(cfg))
			keys := make([]string, 0, len(paths))
			for k := range paths {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%-34s %v\n", k, paths[k])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
