// Package config loads the engine's TOML configuration
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/shoma-dev/toolsched/internal/domain"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Tools         ToolsConfig         `toml:"tools"`
	Monitor       MonitorConfig       `toml:"monitor"`
	Notifications NotificationsConfig `toml:"notifications"`
	Web           WebConfig           `toml:"web"`
}

// GeneralConfig holds file locations
type GeneralConfig struct {
	SchedulesDir string `toml:"schedules_dir"`
	HistoryPath  string `toml:"history_path"`
	DatabasePath string `toml:"database_path"`
	LogDir       string `toml:"log_dir"`
}

// ToolConfig holds per-tool launch settings
type ToolConfig struct {
	Options   string `toml:"options"`
	AutoRetry bool   `toml:"auto_retry"`
}

// ToolsConfig holds the settings of the three supported tools
type ToolsConfig struct {
	Claude ToolConfig `toml:"claude"`
	Codex  ToolConfig `toml:"codex"`
	Gemini ToolConfig `toml:"gemini"`
}

// For returns the settings of the given tool
func (t ToolsConfig) For(tool domain.Tool) ToolConfig {
	switch tool {
	case domain.ToolCodex:
		return t.Codex
	case domain.ToolGemini:
		return t.Gemini
	default:
		return t.Claude
	}
}

// MonitorConfig holds the execution monitor's tuning knobs
type MonitorConfig struct {
	PollIntervalSeconds int      `toml:"poll_interval_seconds"`
	ActivityMarker      string   `toml:"activity_marker"`
	RateLimitMarkers    []string `toml:"rate_limit_markers"`
	ResumeCue           string   `toml:"resume_cue"`
}

// PollInterval returns the poll cadence as a duration
func (m MonitorConfig) PollInterval() time.Duration {
	if m.PollIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(m.PollIntervalSeconds) * time.Second
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// WebConfig holds web API settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".toolsched")
	return &Config{
		General: GeneralConfig{
			SchedulesDir: filepath.Join(base, "schedules"),
			HistoryPath:  filepath.Join(base, "schedule-history.jsonl"),
			DatabasePath: filepath.Join(base, "runs.db"),
			LogDir:       filepath.Join(base, "logs"),
		},
		Tools: ToolsConfig{
			Claude: ToolConfig{Options: "--model opus", AutoRetry: true},
			Codex:  ToolConfig{Options: "--model gpt-5.2-codex", AutoRetry: true},
			Gemini: ToolConfig{Options: "", AutoRetry: true},
		},
		Monitor: MonitorConfig{
			PollIntervalSeconds: 60,
			ActivityMarker:      "esc to interrupt",
			RateLimitMarkers:    []string{"rate limit", "usage limit"},
			ResumeCue:           "continue",
		},
		Notifications: NotificationsConfig{
			Desktop: true,
		},
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.General.SchedulesDir = ExpandPath(cfg.General.SchedulesDir)
	cfg.General.HistoryPath = ExpandPath(cfg.General.HistoryPath)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.General.LogDir = ExpandPath(cfg.General.LogDir)

	return cfg, nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "toolsched", "config.toml")
}

// LocalConfigName is the per-project config file searched for in the
// working directory and its parents
const LocalConfigName = ".toolsched.toml"

// FindLocalConfig walks up from the working directory looking for a
// local config file. Returns "" when none is found.
func FindLocalConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, LocalConfigName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// LoadWithLocalFallback loads the explicit path when given, otherwise a
// local config if one exists, otherwise the default location
func LoadWithLocalFallback(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	if local := FindLocalConfig(); local != "" {
		return Load(local)
	}
	return Load(DefaultConfigPath())
}
