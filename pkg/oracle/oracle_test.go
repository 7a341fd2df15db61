package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		provider string
		wantErr  bool
	}{
		{
			name:     "anthropic",
			cfg:      Config{Provider: "anthropic", APIKey: "sk-ant-test", Model: "claude-sonnet-4-20250514"},
			provider: "anthropic",
		},
		{
			name:     "openai",
			cfg:      Config{Provider: "openai", APIKey: "sk-test", Model: "gpt-4o-mini"},
			provider: "openai",
		},
		{
			name:    "missing api key",
			cfg:     Config{Provider: "anthropic"},
			wantErr: true,
		},
		{
			name:    "unknown provider",
			cfg:     Config{Provider: "bedrock", APIKey: "key"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := NewProvider(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.provider, o.Provider())
		})
	}
}
