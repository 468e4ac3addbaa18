package config

import (
	"os"
	"strings"
)

// CredentialSource says where the model planner's credentials come from.
type CredentialSource string

const (
	SourceEnv     CredentialSource = "environment"
	SourceConfig  CredentialSource = "config_file"
	SourceBedrock CredentialSource = "aws_bedrock"
	SourceNone    CredentialSource = "none"
)

// Credentials describes how the model planner would authenticate.
type Credentials struct {
	// APIKey is empty for Bedrock, which uses the AWS credential chain.
	APIKey string
	Source CredentialSource
}

// Available reports whether the model planner can be used.
func (c Credentials) Available() bool {
	return c.Source != SourceNone
}

// ResolveCredentials picks the planner credentials. Bedrock needs no key;
// otherwise ANTHROPIC_API_KEY wins over llm.api_key.
func ResolveCredentials(cfg *Config) Credentials {
	if cfg != nil && cfg.LLM.UseBedrock {
		return Credentials{Source: SourceBedrock}
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return Credentials{APIKey: key, Source: SourceEnv}
	}
	if cfg != nil && cfg.LLM.APIKey != "" {
		// Unresolved ${VAR} references count as unset.
		key := os.ExpandEnv(cfg.LLM.APIKey)
		if key != "" && !strings.HasPrefix(key, "${") {
			return Credentials{APIKey: key, Source: SourceConfig}
		}
	}
	return Credentials{Source: SourceNone}
}

// MaskAPIKey returns a masked version of the API key for display.
// Shows the first 7 characters (sk-ant-) and last 4 characters.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}

	if len(key) <= 15 {
		return "***"
	}

	return key[:7] + "..." + key[len(key)-4:]
}
