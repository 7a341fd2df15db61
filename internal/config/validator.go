package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// configSchema constrains the shape of the config file before unmarshaling,
// so typos surface as load errors instead of silently ignored keys.
const configSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"server": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"port": {"type": "integer", "minimum": 1, "maximum": 65535},
				"auth_token": {"type": "string"}
			}
		},
		"database": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"path": {"type": "string"}
			}
		},
		"ai": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"provider": {"type": "string", "enum": ["anthropic", "openai"]},
				"api_key": {"type": "string"},
				"model": {"type": "string"},
				"max_tokens": {"type": "integer", "minimum": 1},
				"temperature": {"type": "number", "minimum": 0, "maximum": 2}
			}
		},
		"memory": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"duplicate_threshold": {"type": "number", "minimum": 0, "maximum": 1},
				"core_context_limit": {"type": "integer", "minimum": 1},
				"search_limit": {"type": "integer", "minimum": 1}
			}
		},
		"maintenance": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"checkpoint_schedule": {"type": "string"},
				"vacuum_schedule": {"type": "string"}
			}
		},
		"logging": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"level": {"type": "string", "enum": ["trace", "debug", "info", "warn", "error"]},
				"file": {"type": "string"},
				"console": {"type": "boolean"},
				"pretty": {"type": "boolean"},
				"redaction": {"type": "boolean"}
			}
		}
	}
}`

// ValidateSchema checks the raw config document against the JSON schema.
func ValidateSchema(raw []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(configSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to validate config: %w", err)
	}

	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}

	return nil
}

// Validate applies semantic checks that the schema cannot express.
func Validate(cfg *Config) error {
	switch cfg.AI.Provider {
	case "anthropic":
		if cfg.AI.APIKey != "" && !strings.HasPrefix(cfg.AI.APIKey, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if cfg.AI.APIKey != "" && !strings.HasPrefix(cfg.AI.APIKey, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	default:
		return fmt.Errorf("unsupported AI provider: %s", cfg.AI.Provider)
	}

	if cfg.Memory.DuplicateThreshold < 0 || cfg.Memory.DuplicateThreshold > 1 {
		return fmt.Errorf("duplicate threshold must be in [0, 1], got %v", cfg.Memory.DuplicateThreshold)
	}

	return nil
}
