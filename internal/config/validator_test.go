package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSchema(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"empty object", `{}`, false},
		{
			"full config",
			`{
				"server": {"port": 8420, "auth_token": "secret"},
				"database": {"path": "/tmp/kioku.db"},
				"ai": {"provider": "anthropic", "api_key": "sk-ant-x", "model": "m", "max_tokens": 512, "temperature": 0.7},
				"memory": {"duplicate_threshold": 0.85, "core_context_limit": 20, "search_limit": 10},
				"maintenance": {"checkpoint_schedule": "0 * * * *", "vacuum_schedule": "0 3 * * *"},
				"logging": {"level": "debug", "console": true, "pretty": false, "redaction": true}
			}`,
			false,
		},
		{"unknown top-level key", `{"serverr": {}}`, true},
		{"unknown nested key", `{"memory": {"dup_threshold": 0.85}}`, true},
		{"port out of range", `{"server": {"port": 123456}}`, true},
		{"threshold out of range", `{"memory": {"duplicate_threshold": 1.5}}`, true},
		{"bad provider enum", `{"ai": {"provider": "gemini"}}`, true},
		{"bad log level enum", `{"logging": {"level": "verbose"}}`, true},
		{"wrong type", `{"server": {"port": "8420"}}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSchema([]byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := DefaultConfig()
	valid.AI.APIKey = "sk-ant-abc123"
	assert.NoError(t, Validate(valid))

	t.Run("empty key allowed at load time", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.NoError(t, Validate(cfg))
	})

	t.Run("anthropic key prefix", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AI.APIKey = "sk-wrong"
		assert.Error(t, Validate(cfg))
	})

	t.Run("openai key prefix", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AI.Provider = "openai"
		cfg.AI.APIKey = "key-wrong"
		assert.Error(t, Validate(cfg))
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AI.Provider = "gemini"
		assert.Error(t, Validate(cfg))
	})

	t.Run("threshold bounds", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Memory.DuplicateThreshold = 1.2
		assert.Error(t, Validate(cfg))
	})
}
