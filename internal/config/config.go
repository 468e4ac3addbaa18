// Package config handles configuration loading for railmind.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/railmind/internal/orchestrator/policy"
)

// Notification backends.
const (
	NotifyLog  = "log"
	NotifyNATS = "nats"
)

// Config holds all configuration for railmind.
type Config struct {
	LLM          LLMConfig          `mapstructure:"llm"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Memory       MemoryConfig       `mapstructure:"memory"`
	Notify       NotifyConfig       `mapstructure:"notify"`
	Server       ServerConfig       `mapstructure:"server"`
	Data         DataConfig         `mapstructure:"data"`
	Signals      SignalsConfig      `mapstructure:"signals"`
	Log          LogConfig          `mapstructure:"log"`
}

// LLMConfig holds planner model settings.
type LLMConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	MaxTokens  int64  `mapstructure:"max_tokens"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
	BaseURL    string `mapstructure:"base_url"`
}

// OrchestratorConfig holds loop and dispatch tuning.
type OrchestratorConfig struct {
	MaxIterations int           `mapstructure:"max_iterations"`
	RunTimeout    time.Duration `mapstructure:"run_timeout"`
	TaskTimeout   time.Duration `mapstructure:"task_timeout"`
	MaxWorkers    int           `mapstructure:"max_workers"`
	FallbackAgent string        `mapstructure:"fallback_agent"`
	EventBuffer   int           `mapstructure:"event_buffer"`
}

// MemoryConfig holds the SQLite store settings.
type MemoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
	// Retention is how long run history is kept. Zero keeps everything.
	Retention time.Duration `mapstructure:"retention"`
}

// NotifyConfig selects how alerts leave the process.
type NotifyConfig struct {
	Backend string `mapstructure:"backend"`
	NATSURL string `mapstructure:"nats_url"`
	Subject string `mapstructure:"subject"`
}

// ServerConfig holds HTTP entry point settings.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	MaxConcurrentRuns int           `mapstructure:"max_concurrent_runs"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

// DataConfig points at the railway dataset.
type DataConfig struct {
	// DatasetPath is a YAML dataset file. Empty uses the built-in dataset.
	DatasetPath string `mapstructure:"dataset_path"`
}

// SignalsConfig controls the stop/pause file watcher.
type SignalsConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Root         string        `mapstructure:"root"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// LogConfig controls the debug log.
type LogConfig struct {
	Debug bool   `mapstructure:"debug"`
	Dir   string `mapstructure:"dir"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, RAILMIND_*)
// 2. Project config (.railmind.yaml in current directory or parent)
// 3. User config (~/.config/railmind/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := newViper()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

// newViper returns a viper instance with defaults and environment bindings.
func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	// RAILMIND_SERVER_ADDR overrides server.addr, and so on.
	v.SetEnvPrefix("railmind")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("llm.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("notify.nats_url", "RAILMIND_NATS_URL", "NATS_URL")
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.LLM.APIKey = expandEnv(cfg.LLM.APIKey)
	cfg.Memory.DBPath = expandEnv(cfg.Memory.DBPath)
	cfg.Data.DatasetPath = expandEnv(cfg.Data.DatasetPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch c.Notify.Backend {
	case NotifyLog:
	case NotifyNATS:
		if c.Notify.NATSURL == "" {
			return fmt.Errorf("notify.backend is nats but notify.nats_url is empty")
		}
	default:
		return fmt.Errorf("unknown notify.backend %q", c.Notify.Backend)
	}
	if c.Server.MaxConcurrentRuns < 1 {
		return fmt.Errorf("server.max_concurrent_runs must be at least 1, got %d", c.Server.MaxConcurrentRuns)
	}
	return nil
}

// Policy converts orchestrator settings into a validated policy.
func (c *Config) Policy() *policy.Config {
	p := policy.Default()
	p.Loop.MaxIterations = c.Orchestrator.MaxIterations
	p.Loop.RunTimeout = c.Orchestrator.RunTimeout
	p.Dispatch.MaxWorkers = c.Orchestrator.MaxWorkers
	p.Dispatch.TaskTimeout = c.Orchestrator.TaskTimeout
	p.Planning.FallbackAgent = c.Orchestrator.FallbackAgent
	p.Events.BufferSize = c.Orchestrator.EventBuffer
	return p.Normalize()
}

// DBPath returns the configured database path, or the user-wide default.
func (c *Config) DBPath(defaultPath string) string {
	if c.Memory.DBPath != "" {
		return c.Memory.DBPath
	}
	return defaultPath
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "claude-sonnet-4-20250514")
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.use_bedrock", false)
	v.SetDefault("llm.aws_region", "")
	v.SetDefault("llm.aws_profile", "")
	v.SetDefault("llm.base_url", "")

	v.SetDefault("orchestrator.max_iterations", 3)
	v.SetDefault("orchestrator.run_timeout", "5m")
	v.SetDefault("orchestrator.task_timeout", "30s")
	v.SetDefault("orchestrator.max_workers", 4)
	v.SetDefault("orchestrator.fallback_agent", "operations")
	v.SetDefault("orchestrator.event_buffer", 100)

	v.SetDefault("memory.enabled", true)
	v.SetDefault("memory.db_path", "")
	v.SetDefault("memory.retention", "720h")

	v.SetDefault("notify.backend", NotifyLog)
	v.SetDefault("notify.nats_url", "")
	v.SetDefault("notify.subject", "railmind.alerts")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.max_concurrent_runs", 8)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "6m")

	v.SetDefault("data.dataset_path", "")

	v.SetDefault("signals.enabled", true)
	v.SetDefault("signals.root", ".")
	v.SetDefault("signals.poll_interval", "1s")

	v.SetDefault("log.debug", false)
	v.SetDefault("log.dir", ".")
}

// getUserConfigDir returns the XDG config directory for railmind.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "railmind")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "railmind")
	}
	return filepath.Join(home, ".config", "railmind")
}

// findProjectConfig searches for .railmind.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".railmind.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 4096,
		},
		Orchestrator: OrchestratorConfig{
			MaxIterations: 3,
			RunTimeout:    5 * time.Minute,
			TaskTimeout:   30 * time.Second,
			MaxWorkers:    4,
			FallbackAgent: "operations",
			EventBuffer:   100,
		},
		Memory: MemoryConfig{
			Enabled:   true,
			Retention: 720 * time.Hour,
		},
		Notify: NotifyConfig{
			Backend: NotifyLog,
			Subject: "railmind.alerts",
		},
		Server: ServerConfig{
			Addr:              ":8080",
			MaxConcurrentRuns: 8,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      6 * time.Minute,
		},
		Signals: SignalsConfig{
			Enabled:      true,
			Root:         ".",
			PollInterval: time.Second,
		},
		Log: LogConfig{
			Dir: ".",
		},
	}
}
