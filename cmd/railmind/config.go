package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/railmind/internal/config"
	"github.com/ShayCichocki/railmind/internal/state"
)

var configCmd = &cobra.Command{
	Use:   "config [key]",
	Short: "Show configuration",
	Long: `Show the effective railmind configuration.

Without arguments, displays every setting. With one argument (key),
displays the value for that key.

Configuration is read from ~/.config/railmind/config.yaml.
Project-specific overrides can be placed in .railmind.yaml, and any key can
be overridden with a RAILMIND_ environment variable (RAILMIND_SERVER_ADDR
for server.addr).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(args) == 0 {
			displayAllConfig(out, cfg)
			return nil
		}
		value, err := getConfigValue(cfg, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, value)
		return nil
	},
}

type configEntry struct {
	key   string
	value string
}

// configEntries lists every setting in display order. The API key is masked.
func configEntries(cfg *config.Config) []configEntry {
	creds := config.ResolveCredentials(cfg)
	return []configEntry{
		{"llm.api_key", fmt.Sprintf("%s (%s)", config.MaskAPIKey(creds.APIKey), creds.Source)},
		{"llm.model", cfg.LLM.Model},
		{"llm.max_tokens", strconv.FormatInt(cfg.LLM.MaxTokens, 10)},
		{"llm.use_bedrock", strconv.FormatBool(cfg.LLM.UseBedrock)},
		{"llm.aws_region", cfg.LLM.AWSRegion},
		{"llm.aws_profile", cfg.LLM.AWSProfile},
		{"llm.base_url", cfg.LLM.BaseURL},
		{"orchestrator.max_iterations", strconv.Itoa(cfg.Orchestrator.MaxIterations)},
		{"orchestrator.run_timeout", cfg.Orchestrator.RunTimeout.String()},
		{"orchestrator.task_timeout", cfg.Orchestrator.TaskTimeout.String()},
		{"orchestrator.max_workers", strconv.Itoa(cfg.Orchestrator.MaxWorkers)},
		{"orchestrator.fallback_agent", cfg.Orchestrator.FallbackAgent},
		{"orchestrator.event_buffer", strconv.Itoa(cfg.Orchestrator.EventBuffer)},
		{"memory.enabled", strconv.FormatBool(cfg.Memory.Enabled)},
		{"memory.db_path", cfg.DBPath(state.GlobalDBPath())},
		{"memory.retention", cfg.Memory.Retention.String()},
		{"notify.backend", cfg.Notify.Backend},
		{"notify.nats_url", cfg.Notify.NATSURL},
		{"notify.subject", cfg.Notify.Subject},
		{"server.addr", cfg.Server.Addr},
		{"server.max_concurrent_runs", strconv.Itoa(cfg.Server.MaxConcurrentRuns)},
		{"server.read_timeout", cfg.Server.ReadTimeout.String()},
		{"server.write_timeout", cfg.Server.WriteTimeout.String()},
		{"data.dataset_path", cfg.Data.DatasetPath},
		{"signals.enabled", strconv.FormatBool(cfg.Signals.Enabled)},
		{"signals.root", cfg.Signals.Root},
		{"signals.poll_interval", cfg.Signals.PollInterval.String()},
		{"log.debug", strconv.FormatBool(cfg.Log.Debug)},
		{"log.dir", cfg.Log.Dir},
	}
}

// displayAllConfig prints all configuration values.
func displayAllConfig(w io.Writer, cfg *config.Config) {
	for _, e := range configEntries(cfg) {
		value := e.value
		if value == "" {
			value = "(not set)"
		}
		fmt.Fprintf(w, "%s: %s\n", e.key, value)
	}
}

// getConfigValue returns a single configuration value by dot-separated key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	for _, e := range configEntries(cfg) {
		if e.key == key {
			return e.value, nil
		}
	}
	return "", fmt.Errorf("unknown config key: %s", key)
}
