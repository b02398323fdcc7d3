package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/chartpulse/internal/errs"
)

// ReportConfig controls where and how final report artifacts are written.
type ReportConfig struct {
	OutputDir  string `yaml:"output_dir"`
	Timezone   string `yaml:"timezone"`
	Author     string `yaml:"author"`
	AvatarPath string `yaml:"avatar_path"`
}

// ProviderConfig tunes the market-data client.
type ProviderConfig struct {
	BaseURL           string `yaml:"base_url"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	Burst             int    `yaml:"burst"`
}

// Timeout returns the per-call provider deadline.
func (c ProviderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LLMConfig tunes the analysis model client.
type LLMConfig struct {
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// Timeout returns the per-call LLM deadline.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RenderConfig names the external renderer and composer commands.
type RenderConfig struct {
	ChartCommand    []string `yaml:"chart_command"`
	ComposerCommand []string `yaml:"composer_command"`
	TimeoutSeconds  int      `yaml:"timeout_seconds"`
}

// Timeout returns the subprocess deadline.
func (c RenderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DatabaseConfig configures the optional report index store.
type DatabaseConfig struct {
	Enabled             bool   `yaml:"enabled"`
	DSN                 string `yaml:"dsn"`
	MaxOpenConns        int    `yaml:"max_open_conns"`
	MaxIdleConns        int    `yaml:"max_idle_conns"`
	QueryTimeoutSeconds int    `yaml:"query_timeout"`
}

// QueryTimeout returns the per-query deadline.
func (c DatabaseConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

// OperatorConfig configures the local operator HTTP surface.
type OperatorConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Config is the full application configuration.
type Config struct {
	Cache    CacheConfig    `yaml:"cache"`
	Report   ReportConfig   `yaml:"report"`
	Provider ProviderConfig `yaml:"provider"`
	LLM      LLMConfig      `yaml:"llm"`
	Render   RenderConfig   `yaml:"render"`
	Database DatabaseConfig `yaml:"database"`
	Operator OperatorConfig `yaml:"operator"`
}

// Default returns the compiled-in configuration.
func Default() *Config {
	return &Config{
		Cache: *GetDefaultCacheConfig(),
		Report: ReportConfig{
			OutputDir: "./generated_reports",
			Timezone:  "UTC",
			Author:    "AI Analyst",
		},
		Provider: ProviderConfig{
			BaseURL:           "https://www.alphavantage.co",
			TimeoutSeconds:    30,
			RequestsPerMinute: 75,
			Burst:             5,
		},
		LLM: LLMConfig{
			BaseURL:        "https://api.deepseek.com",
			Model:          "deepseek-chat",
			Temperature:    0.5,
			MaxTokens:      2048,
			TimeoutSeconds: 120,
		},
		Render: RenderConfig{
			ChartCommand:    []string{"python", "scripts/generate_chart_cli.py"},
			ComposerCommand: []string{"python", "scripts/convert_report_cli.py"},
			TimeoutSeconds:  90,
		},
		Database: DatabaseConfig{
			Enabled:             false,
			MaxOpenConns:        10,
			MaxIdleConns:        5,
			QueryTimeoutSeconds: 30,
		},
		Operator: OperatorConfig{
			Host: "127.0.0.1",
			Port: 8090,
		},
	}
}

// Load reads the YAML config at path, applies environment overrides, and
// validates. A missing file yields the compiled-in defaults. Validation
// failures are fatal at startup.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errs.Wrap(errs.ConfigInvalid, "startup", "",
					fmt.Errorf("failed to parse config file %s: %w", path, err))
			}
		case os.IsNotExist(err):
			// Compiled-in defaults apply.
		default:
			return nil, errs.Wrap(errs.ConfigInvalid, "startup", "",
				fmt.Errorf("failed to read config file %s: %w", path, err))
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, errs.Wrap(errs.ConfigInvalid, "startup", "", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies the PG_* and HTTP_PORT environment overrides.
func applyEnvOverrides(cfg *Config) {
	if dsn := os.Getenv("PG_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if enabled := os.Getenv("PG_ENABLED"); enabled != "" {
		if val, err := strconv.ParseBool(enabled); err == nil {
			cfg.Database.Enabled = val
		}
	}
	if maxOpen := os.Getenv("PG_MAX_OPEN_CONNS"); maxOpen != "" {
		if val, err := strconv.Atoi(maxOpen); err == nil {
			cfg.Database.MaxOpenConns = val
		}
	}
	if maxIdle := os.Getenv("PG_MAX_IDLE_CONNS"); maxIdle != "" {
		if val, err := strconv.Atoi(maxIdle); err == nil {
			cfg.Database.MaxIdleConns = val
		}
	}
	if timeout := os.Getenv("PG_QUERY_TIMEOUT"); timeout != "" {
		if val, err := time.ParseDuration(timeout); err == nil {
			cfg.Database.QueryTimeoutSeconds = int(val.Seconds())
		}
	}
	if portStr := os.Getenv("HTTP_PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			cfg.Operator.Port = p
		}
	}
}

// Validate checks the full configuration for coherence.
func (c *Config) Validate() error {
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if c.Report.OutputDir == "" {
		return fmt.Errorf("report output_dir is required")
	}
	if _, err := time.LoadLocation(c.Report.Timezone); err != nil {
		return fmt.Errorf("unknown report timezone %q: %w", c.Report.Timezone, err)
	}
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider base_url is required")
	}
	if c.Provider.TimeoutSeconds <= 0 {
		return fmt.Errorf("provider timeout_seconds must be positive")
	}
	if c.Provider.RequestsPerMinute <= 0 {
		return fmt.Errorf("provider requests_per_minute must be positive")
	}
	if c.LLM.BaseURL == "" || c.LLM.Model == "" {
		return fmt.Errorf("llm base_url and model are required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm temperature %.2f outside [0, 2]", c.LLM.Temperature)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm max_tokens must be positive")
	}
	if len(c.Render.ChartCommand) == 0 || len(c.Render.ComposerCommand) == 0 {
		return fmt.Errorf("render chart_command and composer_command are required")
	}
	if c.Render.TimeoutSeconds <= 0 {
		return fmt.Errorf("render timeout_seconds must be positive")
	}
	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required when database is enabled")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("max_idle_conns cannot exceed max_open_conns")
	}
	if c.Operator.Port < 1 || c.Operator.Port > 65535 {
		return fmt.Errorf("operator port %d out of range", c.Operator.Port)
	}
	return nil
}

// Location resolves the configured report timezone. Validate guarantees it
// parses.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Report.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
