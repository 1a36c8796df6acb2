package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the research engine.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Agents    AgentsConfig    `mapstructure:"agents"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LLMConfig contains completion provider configurations.
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single completion provider configuration.
type LLMProvider struct {
	Type       string              `mapstructure:"type"` // openai, anthropic
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Models     map[string]LLMModel `mapstructure:"models"`
	MaxRetries int                 `mapstructure:"max_retries"`
	Timeout    time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration.
type LLMModel struct {
	Name            string  `mapstructure:"name"`
	APIName         string  `mapstructure:"api_name"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	CostPer1K       float64 `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64 `mapstructure:"cost_per_1k_output"`
}

// LLMRoutingConfig defines which model each reasoning stage uses.
type LLMRoutingConfig struct {
	Understanding string `mapstructure:"understanding"`
	Planning      string `mapstructure:"planning"`
	Resolution    string `mapstructure:"resolution"`
	Reflection    string `mapstructure:"reflection"`
	Synthesis     string `mapstructure:"synthesis"`
	Fallback      string `mapstructure:"fallback"`
}

// AgentsConfig contains orchestration loop settings.
type AgentsConfig struct {
	MaxIterations         int           `mapstructure:"max_iterations"`
	MaxToolCalls          int           `mapstructure:"max_tool_calls"`
	MaxParallelToolCalls  int           `mapstructure:"max_parallel_tool_calls"`
	ToolTimeout           time.Duration `mapstructure:"tool_timeout"`
	ContinueOnTaskFailure bool          `mapstructure:"continue_on_task_failure"`
}

// ToolsConfig contains settings for built-in tools.
type ToolsConfig struct {
	SerperAPIKey  string        `mapstructure:"serper_api_key"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
	FetchMaxChars int           `mapstructure:"fetch_max_chars"`
	IndexPath     string        `mapstructure:"index_path"` // empty -> in-memory index
}

// StorageConfig contains context-store backends.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	FileDir  string         `mapstructure:"file_dir"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// TelemetryConfig contains telemetry and cost tracking settings.
type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	CostTracking bool `mapstructure:"cost_tracking"`
}

func (c AgentsConfig) Validate() error {
	if c.MaxIterations <= 0 {
		return fmt.Errorf("agents.max_iterations must be > 0")
	}
	if c.MaxToolCalls <= 0 {
		return fmt.Errorf("agents.max_tool_calls must be > 0")
	}
	return nil
}

// LoadConfig loads config from file, falling back to defaults and FATHOM_*
// environment overrides.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.SetDefault("general.default_timeout", 60*time.Second)
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("server.address", ":10010")
	viper.SetDefault("agents.max_iterations", 2)
	viper.SetDefault("agents.max_tool_calls", 5)
	viper.SetDefault("agents.max_parallel_tool_calls", 4)
	viper.SetDefault("agents.tool_timeout", 45*time.Second)
	viper.SetDefault("agents.continue_on_task_failure", false)
	viper.SetDefault("tools.fetch_timeout", 20*time.Second)
	viper.SetDefault("tools.fetch_max_chars", 12000)
	viper.SetDefault("storage.file_dir", "runs")
	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.cost_tracking", true)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("FATHOM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// config file is optional; defaults + env are enough to run
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	if err := config.Agents.Validate(); err != nil {
		panic(err)
	}
	return &config
}
