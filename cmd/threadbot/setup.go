package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"threadbot/internal/config"
)

var knownModels = []string{
	"claude-3-5-sonnet-20241022",
	"claude-sonnet-4-20250514",
	"claude-3-5-haiku-20241022",
}

func setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup: Slack tokens → Anthropic key → model → save config",
		Long:  "Asks for the Slack bot and app tokens, the Anthropic API key and the model, then writes the config to --config or the default path. Answer with ${VAR} to keep a secret in the environment.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				cfg = config.Defaults()
			}
			if err := runSetup(os.Stdin, os.Stdout, cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			fmt.Printf("\nConfig saved to %s\n", cfgPath)
			fmt.Println("Next: run 'threadbot check --online', then 'threadbot run'.")
			return nil
		},
	}
}

// runSetup walks through the prompts and fills cfg in place.
func runSetup(in io.Reader, out io.Writer, cfg *config.Config) error {
	reader := bufio.NewReader(in)
	prompt := func(label, def string) (string, error) {
		if def != "" {
			fmt.Fprintf(out, "%s [%s]: ", label, def)
		} else {
			fmt.Fprintf(out, "%s: ", label)
		}
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", err
		}
		s := strings.TrimSpace(line)
		if s == "" {
			return def, nil
		}
		return s, nil
	}

	fmt.Fprintln(out, "\n--- Step 1: Slack ---")
	bot, err := prompt("Bot token (xoxb-...)", placeholderOr(cfg.Slack.BotToken, "SLACK_BOT_TOKEN"))
	if err != nil {
		return err
	}
	app, err := prompt("App-level token for Socket Mode (xapp-...)", placeholderOr(cfg.Slack.AppToken, "SLACK_APP_TOKEN"))
	if err != nil {
		return err
	}
	cfg.Slack.BotToken, cfg.Slack.AppToken = bot, app

	fmt.Fprintln(out, "\n--- Step 2: Anthropic ---")
	key, err := prompt("API key", placeholderOr(cfg.Anthropic.APIKey, "ANTHROPIC_API_KEY"))
	if err != nil {
		return err
	}
	cfg.Anthropic.APIKey = key

	for i, m := range knownModels {
		fmt.Fprintf(out, "  %d) %s\n", i+1, m)
	}
	def := cfg.Anthropic.Model
	if def == "" {
		def = knownModels[0]
	}
	choice, err := prompt("Model (number or name)", def)
	if err != nil {
		return err
	}
	if n, err := strconv.Atoi(choice); err == nil && n >= 1 && n <= len(knownModels) {
		choice = knownModels[n-1]
	}
	cfg.Anthropic.Model = choice

	fmt.Fprintln(out, "\n--- Step 3: System prompt ---")
	file, err := prompt("System prompt file (empty for none)", cfg.Anthropic.SystemPromptFile)
	if err != nil {
		return err
	}
	cfg.Anthropic.SystemPromptFile = file

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	return nil
}

// placeholderOr keeps a configured value, or suggests an env placeholder.
func placeholderOr(current, envVar string) string {
	if current != "" {
		return current
	}
	return "${" + envVar + "}"
}
