package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Auth modes for the YouTube client.
const (
	AuthModeOAuthRefresh = "oauth_refresh"
	AuthModeADC          = "adc"
	AuthModeNone         = "none"
)

// Config holds all application configuration.
type Config struct {
	LLM       LLMConfig       `toml:"llm"`
	YouTube   YouTubeConfig   `toml:"youtube"`
	Optimizer OptimizerConfig `toml:"optimizer"`
	Server    ServerConfig    `toml:"server"`
}

// LLMConfig holds generative-model provider settings. An empty APIKey is
// a supported configuration: the pipeline runs in baseline-only mode.
type LLMConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// YouTubeConfig holds Google API credentials. AuthMode is normally left
// empty and auto-detected from whichever credential set is present.
type YouTubeConfig struct {
	AuthMode               string `toml:"auth_mode"`
	ClientID               string `toml:"client_id"`
	ClientSecret           string `toml:"client_secret"`
	RefreshToken           string `toml:"refresh_token"`
	ServiceAccountJSON     string `toml:"service_account_json"`
	ApplicationCredentials string `toml:"application_credentials"`
}

// OptimizerConfig holds pipeline settings. MockReason is populated at
// load time when mock mode was forced rather than requested.
type OptimizerConfig struct {
	Mock           bool   `toml:"mock"`
	FixturePath    string `toml:"fixture_path"`
	OutDir         string `toml:"out_dir"`
	SkillRulesPath string `toml:"skill_rules_path"`

	MockReason string `toml:"-"`
}

// ServerConfig holds HTTP server settings for serve mode.
type ServerConfig struct {
	Port int `toml:"port"`
}

const defaultConfigContent = `[llm]
api_key = ""                      # Or set OPENAI_API_KEY
model = "gpt-4.1-mini"

[youtube]
auth_mode = ""                    # "" auto-detects: "oauth_refresh" or "adc"
client_id = ""                    # Or set YT_CLIENT_ID
client_secret = ""                # Or set YT_CLIENT_SECRET
refresh_token = ""                # Or set YT_REFRESH_TOKEN
service_account_json = ""         # Or set GCP_SERVICE_ACCOUNT_JSON
application_credentials = ""      # Or set GOOGLE_APPLICATION_CREDENTIALS

[optimizer]
mock = false                      # Or set SHORTS_OPTIMIZER_MOCK
fixture_path = "fixtures/mock-shorts.json"
out_dir = "out"
skill_rules_path = "skills/ytshortsak.md"

[server]
port = 8787
`

// Load reads and parses the TOML config from the given path. If the file
// does not exist, a default config file is created there. Environment
// variables override file values with highest priority. After overrides,
// the YouTube auth mode is resolved, and mock mode is forced (with a
// recorded reason) when no usable credentials remain.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := createDefault(path); err != nil {
			return nil, fmt.Errorf("creating default config: %w", err)
		}
		slog.Info("created default config file", "path", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Validate explicitly-set values before applying defaults, so that
	// explicitly writing "port = 0" is an error rather than silently
	// being replaced with the default.
	if err := validateExplicit(&cfg, md); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	resolveAuthMode(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// ForceMock switches the config into fixture mode, recording why.
func (c *Config) ForceMock(reason string) {
	c.Optimizer.Mock = true
	if c.Optimizer.MockReason == "" {
		c.Optimizer.MockReason = reason
	}
}

// createDefault writes the default config content to the given path,
// creating any parent directories as needed.
func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigContent), 0o644); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}

// validateExplicit checks values that were explicitly set in the TOML
// file before defaults paper over them.
func validateExplicit(cfg *Config, md toml.MetaData) error {
	if md.IsDefined("server", "port") {
		if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
			return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", cfg.Server.Port)
		}
	}
	if md.IsDefined("youtube", "auth_mode") && cfg.YouTube.AuthMode != "" {
		switch cfg.YouTube.AuthMode {
		case AuthModeOAuthRefresh, AuthModeADC, AuthModeNone:
		default:
			return fmt.Errorf("invalid youtube.auth_mode %q: must be %q, %q, or %q",
				cfg.YouTube.AuthMode, AuthModeOAuthRefresh, AuthModeADC, AuthModeNone)
		}
	}
	return nil
}

// applyDefaults sets default values for any zero-valued fields.
func applyDefaults(cfg *Config) {
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4.1-mini"
	}
	if cfg.Optimizer.FixturePath == "" {
		cfg.Optimizer.FixturePath = "fixtures/mock-shorts.json"
	}
	if cfg.Optimizer.OutDir == "" {
		cfg.Optimizer.OutDir = "out"
	}
	if cfg.Optimizer.SkillRulesPath == "" {
		cfg.Optimizer.SkillRulesPath = "skills/ytshortsak.md"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8787
	}
}

// applyEnvOverrides applies environment variable overrides. Environment
// variables take highest priority over config file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("YT_CLIENT_ID"); v != "" {
		cfg.YouTube.ClientID = strings.TrimSpace(v)
	}
	if v := os.Getenv("YT_CLIENT_SECRET"); v != "" {
		cfg.YouTube.ClientSecret = strings.TrimSpace(v)
	}
	if v := os.Getenv("YT_REFRESH_TOKEN"); v != "" {
		cfg.YouTube.RefreshToken = strings.TrimSpace(v)
	}
	if v := os.Getenv("GCP_SERVICE_ACCOUNT_JSON"); v != "" {
		cfg.YouTube.ServiceAccountJSON = strings.TrimSpace(v)
	}
	if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" {
		cfg.YouTube.ApplicationCredentials = v
	}
	if v := os.Getenv("SHORTS_OPTIMIZER_MOCK"); v != "" {
		cfg.Optimizer.Mock = toBool(v)
	}
	if v := os.Getenv("SHORTS_OPTIMIZER_FIXTURE"); v != "" {
		cfg.Optimizer.FixturePath = v
	}
	if v := os.Getenv("SHORTS_OPTIMIZER_OUT_DIR"); v != "" {
		cfg.Optimizer.OutDir = v
	}
}

// resolveAuthMode fills in an empty auth_mode from whichever credential
// set is present: the OAuth refresh-token trio wins over ADC. When no
// credentials exist at all, live mode cannot work, so mock mode is
// forced with a recorded reason.
func resolveAuthMode(cfg *Config) {
	if cfg.YouTube.AuthMode == "" {
		switch {
		case cfg.YouTube.ClientID != "" && cfg.YouTube.ClientSecret != "" && cfg.YouTube.RefreshToken != "":
			cfg.YouTube.AuthMode = AuthModeOAuthRefresh
		case cfg.YouTube.ApplicationCredentials != "" || cfg.YouTube.ServiceAccountJSON != "":
			cfg.YouTube.AuthMode = AuthModeADC
		default:
			cfg.YouTube.AuthMode = AuthModeNone
		}
	}

	if !cfg.Optimizer.Mock && cfg.YouTube.AuthMode == AuthModeNone {
		cfg.Optimizer.Mock = true
		cfg.Optimizer.MockReason = "No YouTube credentials detected (YT_* or ADC). Falling back to fixture mode."
	}
}

// validate checks that configuration values are within acceptable ranges.
func validate(cfg *Config) error {
	switch cfg.YouTube.AuthMode {
	case AuthModeOAuthRefresh, AuthModeADC, AuthModeNone:
		// valid
	default:
		return fmt.Errorf("invalid youtube.auth_mode %q", cfg.YouTube.AuthMode)
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", cfg.Server.Port)
	}

	if cfg.Optimizer.FixturePath == "" {
		return errors.New("optimizer.fixture_path must not be empty")
	}

	return nil
}

// toBool interprets the usual truthy env spellings.
func toBool(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
