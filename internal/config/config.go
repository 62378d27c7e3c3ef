// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config is the root of the runtime configuration tree. It is loaded once at
// startup (file, then environment overrides) and treated as read-only after
// Validate passes.
type Config struct {
	Logger  LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Agent   AgentConfig     `mapstructure:"agent" yaml:"agent"`
	LLM     LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
	Store   StoreConfig     `mapstructure:"store" yaml:"store"`
}

// LoggerConfig holds settings for the zap logger and its rotating file sink.
type LoggerConfig struct {
	// Level is the minimum enabled severity: debug, info, warn, error.
	Level string `mapstructure:"level" yaml:"level"`
	// Format selects the encoder: "console" or "json".
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	// LogFile is the rotated file sink. Empty disables file logging.
	LogFile    string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int         `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int         `mapstructure:"max_age" yaml:"max_age"` // days
	Compress   bool        `mapstructure:"compress" yaml:"compress"`
	Colors     ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig maps log levels to console colors. Valid values: black, red,
// green, yellow, blue, magenta, cyan, white.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls the managed browser instance.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ViewportWidth     int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	// AllowedHosts restricts navigation targets; glob patterns such as
	// "*.example.com". Empty means any host.
	AllowedHosts []string `mapstructure:"allowed_hosts" yaml:"allowed_hosts"`
	// ExtraArgs are appended verbatim to the browser launch flags.
	ExtraArgs []string `mapstructure:"extra_args" yaml:"extra_args"`
}

// AgentConfig bounds the decision loop and the context it feeds the model.
type AgentConfig struct {
	// MaxIterations caps primary-agent loop cycles before the run aborts.
	MaxIterations int `mapstructure:"max_iterations" yaml:"max_iterations"`
	// TokenBudget caps the estimated size of observation context per turn.
	TokenBudget int `mapstructure:"token_budget" yaml:"token_budget"`
	// SubagentStepCeiling caps loop cycles inside a delegated sub-task.
	SubagentStepCeiling int `mapstructure:"subagent_step_ceiling" yaml:"subagent_step_ceiling"`
	// MaxProtocolRetries is how many consecutive malformed model replies are
	// tolerated before the run fails.
	MaxProtocolRetries int `mapstructure:"max_protocol_retries" yaml:"max_protocol_retries"`
	// RoleCap limits how many elements of one role appear in an overview.
	RoleCap int `mapstructure:"role_cap" yaml:"role_cap"`
	// FragmentMaxChars caps the simplified HTML returned for one element.
	FragmentMaxChars int `mapstructure:"fragment_max_chars" yaml:"fragment_max_chars"`
	// Estimator selects the token estimation strategy: heuristic or tiktoken.
	Estimator string `mapstructure:"estimator" yaml:"estimator"`
}

// LLMProvider identifies a model API dialect.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
	// ProviderOpenAI covers any OpenAI-compatible chat completions endpoint,
	// including local servers that speak the same wire format.
	ProviderOpenAI LLMProvider = "openai"
)

// LLMRouterConfig routes the two capability tiers onto concrete models.
type LLMRouterConfig struct {
	DefaultFastModel     string `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	// APIKey is the fallback credential used when a model entry has none.
	// Bound to WALDO_LLM_API_KEY.
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
	// RequestsPerMinute throttles calls across both tiers. Zero disables.
	RequestsPerMinute float64 `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	// Models maps a model name to its provider-specific settings. Names not
	// present here fall back to provider inference from the name prefix.
	Models map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// LLMModelConfig configures a single model endpoint.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float32       `mapstructure:"top_p" yaml:"top_p"`
	TopK        int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// StoreConfig controls the optional run archive. The archive is write-only
// from the agent's point of view; nothing in a run reads prior runs.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
}

// NewDefaultConfig returns a Config populated with defaults only.
func NewDefaultConfig() (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	return NewConfigFromViper(v)
}

// SetDefaults registers every default value on the given viper instance.
// Defaults are the single source of truth for out-of-the-box behavior.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "waldo")
	v.SetDefault("logger.log_file", defaultLogFile())
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "magenta")
	v.SetDefault("logger.colors.info", "blue")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "red")
	v.SetDefault("logger.colors.panic", "red")
	v.SetDefault("logger.colors.fatal", "red")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 720)
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.action_timeout", "15s")
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.allowed_hosts", []string{})

	// -- Agent --
	v.SetDefault("agent.max_iterations", 50)
	v.SetDefault("agent.token_budget", 3000)
	v.SetDefault("agent.subagent_step_ceiling", 10)
	v.SetDefault("agent.max_protocol_retries", 3)
	v.SetDefault("agent.role_cap", 10)
	v.SetDefault("agent.fragment_max_chars", 2000)
	v.SetDefault("agent.estimator", "heuristic")

	// -- LLM --
	v.SetDefault("llm.default_fast_model", "gemini-2.5-flash")
	v.SetDefault("llm.default_powerful_model", "gemini-2.5-pro")
	v.SetDefault("llm.requests_per_minute", 30.0)

	// -- Store --
	v.SetDefault("store.enabled", false)
	v.SetDefault("store.dsn", "")
}

// NewConfigFromViper unmarshals and validates a fully-populated viper
// instance. Secrets are bound to environment variables here so they never
// need to live in a config file.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	_ = v.BindEnv("llm.api_key", "WALDO_LLM_API_KEY")
	_ = v.BindEnv("store.dsn", "WALDO_STORE_DSN")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate applies structural checks that viper cannot express.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logger.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logger.level %q", c.Logger.Level)
	}
	switch c.Logger.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid logger.format %q", c.Logger.Format)
	}
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport must be positive, got %dx%d",
			c.Browser.ViewportWidth, c.Browser.ViewportHeight)
	}
	if c.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be positive")
	}
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be positive")
	}
	if c.Agent.TokenBudget <= 0 {
		return fmt.Errorf("agent.token_budget must be positive")
	}
	if c.Agent.SubagentStepCeiling <= 0 {
		return fmt.Errorf("agent.subagent_step_ceiling must be positive")
	}
	if c.Agent.RoleCap <= 0 {
		return fmt.Errorf("agent.role_cap must be positive")
	}
	if c.Agent.FragmentMaxChars <= 0 {
		return fmt.Errorf("agent.fragment_max_chars must be positive")
	}
	switch c.Agent.Estimator {
	case "heuristic", "tiktoken":
	default:
		return fmt.Errorf("invalid agent.estimator %q", c.Agent.Estimator)
	}
	for name, mc := range c.LLM.Models {
		switch mc.Provider {
		case ProviderGemini, ProviderOpenAI, "":
		default:
			return fmt.Errorf("model %q: unknown provider %q", name, mc.Provider)
		}
	}
	if c.Store.Enabled && c.Store.DSN == "" {
		return fmt.Errorf("store.enabled requires store.dsn")
	}
	return nil
}

// ModelFor resolves the model name for a tier, then its per-model settings,
// falling back to an empty entry carrying only the router-level API key.
func (c *Config) ModelFor(tier string) (string, LLMModelConfig) {
	name := c.LLM.DefaultFastModel
	if tier == "powerful" {
		name = c.LLM.DefaultPowerfulModel
	}
	mc, ok := c.LLM.Models[name]
	if !ok {
		mc = LLMModelConfig{}
	}
	if mc.Model == "" {
		mc.Model = name
	}
	if mc.APIKey == "" {
		mc.APIKey = c.LLM.APIKey
	}
	return name, mc
}

func defaultLogFile() string {
	home, err := homedir.Dir()
	if err != nil {
		return ""
	}
	return home + "/.waldo/waldo.log"
}
