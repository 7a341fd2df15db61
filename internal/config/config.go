// Package config defines, loads, and validates the Kioku configuration.
package config

import (
	"os"
	"path/filepath"
)

// Config is the root Kioku configuration.
type Config struct {
	Server      ServerConfig      `json:"server" mapstructure:"server"`
	Database    DatabaseConfig    `json:"database" mapstructure:"database"`
	AI          AIConfig          `json:"ai" mapstructure:"ai"`
	Memory      MemoryConfig      `json:"memory" mapstructure:"memory"`
	Maintenance MaintenanceConfig `json:"maintenance" mapstructure:"maintenance"`
	Logging     LoggingConfig     `json:"logging" mapstructure:"logging"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port      int    `json:"port" mapstructure:"port"`
	AuthToken string `json:"auth_token" mapstructure:"auth_token"`
}

// DatabaseConfig holds the SQLite settings.
type DatabaseConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// AIConfig selects and tunes the completion provider.
type AIConfig struct {
	Provider    string  `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
	Model       string  `json:"model" mapstructure:"model"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
}

// MemoryConfig tunes the memory pipeline.
type MemoryConfig struct {
	DuplicateThreshold float64 `json:"duplicate_threshold" mapstructure:"duplicate_threshold"`
	CoreContextLimit   int     `json:"core_context_limit" mapstructure:"core_context_limit"`
	SearchLimit        int     `json:"search_limit" mapstructure:"search_limit"`
}

// MaintenanceConfig schedules storage upkeep.
type MaintenanceConfig struct {
	CheckpointSchedule string `json:"checkpoint_schedule" mapstructure:"checkpoint_schedule"`
	VacuumSchedule     string `json:"vacuum_schedule" mapstructure:"vacuum_schedule"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := filepath.Join(home, ".kioku")

	return &Config{
		Server: ServerConfig{
			Port: 8420,
		},
		Database: DatabaseConfig{
			Path: filepath.Join(dataDir, "kioku.db"),
		},
		AI: AIConfig{
			Provider:    "anthropic",
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   1024,
			Temperature: 0.7,
		},
		Memory: MemoryConfig{
			DuplicateThreshold: 0.85,
			CoreContextLimit:   20,
			SearchLimit:        10,
		},
		Maintenance: MaintenanceConfig{
			CheckpointSchedule: "0 * * * *", // hourly
			VacuumSchedule:     "0 3 * * *", // daily at 03:00
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    false,
			Redaction: true,
		},
	}
}
