// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Server() ServerConfig
	Browser() BrowserConfig
	Publish() PublishConfig
	Wizard() WizardConfig
	Harvest() HarvestConfig
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	ServerCfg  ServerConfig  `mapstructure:"server" yaml:"server"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	PublishCfg PublishConfig `mapstructure:"publish" yaml:"publish"`
	WizardCfg  WizardConfig  `mapstructure:"wizard" yaml:"wizard"`
	HarvestCfg HarvestConfig `mapstructure:"harvest" yaml:"harvest"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Server() ServerConfig   { return c.ServerCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Publish() PublishConfig { return c.PublishCfg }
func (c *Config) Wizard() WizardConfig   { return c.WizardCfg }
func (c *Config) Harvest() HarvestConfig { return c.HarvestCfg }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host              string        `mapstructure:"host" yaml:"host"`
	Port              int           `mapstructure:"port" yaml:"port"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	// RequestTimeout bounds a whole request. serve raises it to the publish
	// flow's own budget when it is shorter.
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// BrowserConfig holds settings for the headless browser instances.
type BrowserConfig struct {
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	ExecPath          string         `mapstructure:"exec_path" yaml:"exec_path"`
	Concurrency       int            `mapstructure:"concurrency" yaml:"concurrency"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	Viewport          map[string]int `mapstructure:"viewport" yaml:"viewport"`
	Lang              string         `mapstructure:"lang" yaml:"lang"`
	UserAgent         string         `mapstructure:"user_agent" yaml:"user_agent"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// PublishConfig configures the deals-site publishing flow.
// Secret and credentials are never written back out.
type PublishConfig struct {
	Secret              string        `mapstructure:"secret" yaml:"-"`
	Email               string        `mapstructure:"email" yaml:"-"`
	Password            string        `mapstructure:"password" yaml:"-"`
	SubmitURL           string        `mapstructure:"submit_url" yaml:"submit_url"`
	LoginURLPattern     string        `mapstructure:"login_url_pattern" yaml:"login_url_pattern"`
	ChallengeURLPattern string        `mapstructure:"challenge_url_pattern" yaml:"challenge_url_pattern"`
	SourceLabel         string        `mapstructure:"source_label" yaml:"source_label"`
	MaxConcurrent       int           `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	AdmissionTimeout    time.Duration `mapstructure:"admission_timeout" yaml:"admission_timeout"`
}

// WizardConfig holds the timings of the wizard state machine.
type WizardConfig struct {
	FieldWait     time.Duration `mapstructure:"field_wait" yaml:"field_wait"`
	PollInterval  time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	SettleWait    time.Duration `mapstructure:"settle_wait" yaml:"settle_wait"`
	TypeDelay     time.Duration `mapstructure:"type_delay" yaml:"type_delay"`
	LoginSettle   time.Duration `mapstructure:"login_settle" yaml:"login_settle"`
	PublishSettle time.Duration `mapstructure:"publish_settle" yaml:"publish_settle"`
	StepTimeout   time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
	StepRetries   int           `mapstructure:"step_retries" yaml:"step_retries"`
}

// HarvestConfig configures the flash-sale listing pipeline.
type HarvestConfig struct {
	ListURL              string        `mapstructure:"list_url" yaml:"list_url"`
	BaseURL              string        `mapstructure:"base_url" yaml:"base_url"`
	ChallengeURLPattern  string        `mapstructure:"challenge_url_pattern" yaml:"challenge_url_pattern"`
	DefaultMax           int           `mapstructure:"default_max" yaml:"default_max"`
	MaxLimit             int           `mapstructure:"max_limit" yaml:"max_limit"`
	ListTimeout          time.Duration `mapstructure:"list_timeout" yaml:"list_timeout"`
	CardWait             time.Duration `mapstructure:"card_wait" yaml:"card_wait"`
	DetailWait           time.Duration `mapstructure:"detail_wait" yaml:"detail_wait"`
	DetailRate           float64       `mapstructure:"detail_rate" yaml:"detail_rate"`
	SummaryWords         int           `mapstructure:"summary_words" yaml:"summary_words"`
	CacheTTL             time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	CacheJanitorInterval time.Duration `mapstructure:"cache_janitor_interval" yaml:"cache_janitor_interval"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "dealwire")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Server --
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_header_timeout", "10s")
	v.SetDefault("server.request_timeout", "10m")
	v.SetDefault("server.shutdown_timeout", "30s")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.concurrency", 2)
	v.SetDefault("browser.viewport", map[string]int{"width": 1280, "height": 900})
	v.SetDefault("browser.lang", "es-ES")
	v.SetDefault("browser.navigation_timeout", "45s")

	// -- Publish --
	v.SetDefault("publish.submit_url", "https://www.chollometro.com/compartir")
	v.SetDefault("publish.login_url_pattern", `login|signin|sign-in|acceso|entrar|/auth`)
	v.SetDefault("publish.challenge_url_pattern", `punish|captcha|challenge`)
	v.SetDefault("publish.source_label", "Fuente: Miravia Flash Sale")
	v.SetDefault("publish.max_concurrent", 1)
	v.SetDefault("publish.admission_timeout", "30s")

	// -- Wizard --
	v.SetDefault("wizard.field_wait", "10s")
	v.SetDefault("wizard.poll_interval", "250ms")
	v.SetDefault("wizard.settle_wait", "1500ms")
	v.SetDefault("wizard.type_delay", "15ms")
	v.SetDefault("wizard.login_settle", "3s")
	v.SetDefault("wizard.publish_settle", "4s")
	v.SetDefault("wizard.step_timeout", "30s")
	v.SetDefault("wizard.step_retries", 0)

	// -- Harvest --
	v.SetDefault("harvest.list_url", "https://www.miravia.es/flashsale/home")
	v.SetDefault("harvest.base_url", "https://www.miravia.es")
	v.SetDefault("harvest.challenge_url_pattern", `punish|captcha`)
	v.SetDefault("harvest.default_max", 10)
	v.SetDefault("harvest.max_limit", 50)
	v.SetDefault("harvest.list_timeout", "45s")
	v.SetDefault("harvest.card_wait", "20s")
	v.SetDefault("harvest.detail_wait", "12s")
	v.SetDefault("harvest.detail_rate", 2.0)
	v.SetDefault("harvest.summary_words", 150)
	v.SetDefault("harvest.cache_ttl", "10m")
	v.SetDefault("harvest.cache_janitor_interval", "1m")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Sensitive values come from the environment. The bare names are kept so
	// existing deployments keep working.
	_ = v.BindEnv("publish.secret", "DEALWIRE_PUBLISH_SECRET", "SECRET")
	_ = v.BindEnv("publish.email", "DEALWIRE_PUBLISH_EMAIL", "CHOLLOMETRO_EMAIL")
	_ = v.BindEnv("publish.password", "DEALWIRE_PUBLISH_PASSWORD", "CHOLLOMETRO_PASSWORD")
	_ = v.BindEnv("server.port", "DEALWIRE_SERVER_PORT", "PORT")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.LoggerCfg.LogFile != "" {
		expanded, err := homedir.Expand(cfg.LoggerCfg.LogFile)
		if err != nil {
			return nil, fmt.Errorf("could not resolve log file path '%s': %w", cfg.LoggerCfg.LogFile, err)
		}
		cfg.LoggerCfg.LogFile = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
// Missing secret or credentials are not rejected here: they are reported per
// request so the harvest endpoints stay usable.
func (c *Config) Validate() error {
	if c.ServerCfg.Port <= 0 || c.ServerCfg.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.BrowserCfg.Concurrency <= 0 {
		return fmt.Errorf("browser.concurrency must be a positive integer")
	}
	if c.BrowserCfg.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be a positive duration")
	}
	if err := c.PublishCfg.Validate(); err != nil {
		return fmt.Errorf("publish configuration invalid: %w", err)
	}
	if err := c.WizardCfg.Validate(); err != nil {
		return fmt.Errorf("wizard configuration invalid: %w", err)
	}
	if err := c.HarvestCfg.Validate(); err != nil {
		return fmt.Errorf("harvest configuration invalid: %w", err)
	}
	return nil
}

// HasCredentials reports whether both account fields are set.
func (p PublishConfig) HasCredentials() bool {
	return p.Email != "" && p.Password != ""
}

// Validate checks the PublishConfig settings.
func (p *PublishConfig) Validate() error {
	if _, err := url.ParseRequestURI(p.SubmitURL); err != nil {
		return fmt.Errorf("submit_url is not a valid URL: %w", err)
	}
	if _, err := regexp.Compile(p.LoginURLPattern); err != nil {
		return fmt.Errorf("login_url_pattern does not compile: %w", err)
	}
	if _, err := regexp.Compile(p.ChallengeURLPattern); err != nil {
		return fmt.Errorf("challenge_url_pattern does not compile: %w", err)
	}
	if p.MaxConcurrent <= 0 {
		return fmt.Errorf("max_concurrent must be a positive integer")
	}
	if p.AdmissionTimeout <= 0 {
		return fmt.Errorf("admission_timeout must be a positive duration")
	}
	return nil
}

// Validate checks the WizardConfig settings.
func (w *WizardConfig) Validate() error {
	if w.FieldWait <= 0 || w.PollInterval <= 0 || w.StepTimeout <= 0 {
		return fmt.Errorf("field_wait, poll_interval and step_timeout must be positive durations")
	}
	if w.SettleWait < 0 || w.TypeDelay < 0 || w.LoginSettle < 0 || w.PublishSettle < 0 {
		return fmt.Errorf("settle and delay durations must not be negative")
	}
	if w.StepRetries < 0 {
		return fmt.Errorf("step_retries must not be negative")
	}
	return nil
}

// Validate checks the HarvestConfig settings.
func (h *HarvestConfig) Validate() error {
	if _, err := url.ParseRequestURI(h.ListURL); err != nil {
		return fmt.Errorf("list_url is not a valid URL: %w", err)
	}
	if _, err := url.ParseRequestURI(h.BaseURL); err != nil {
		return fmt.Errorf("base_url is not a valid URL: %w", err)
	}
	if _, err := regexp.Compile(h.ChallengeURLPattern); err != nil {
		return fmt.Errorf("challenge_url_pattern does not compile: %w", err)
	}
	if h.DefaultMax <= 0 || h.MaxLimit < h.DefaultMax {
		return fmt.Errorf("default_max must be positive and not exceed max_limit")
	}
	if h.DetailRate <= 0 {
		return fmt.Errorf("detail_rate must be positive")
	}
	if h.SummaryWords <= 0 {
		return fmt.Errorf("summary_words must be a positive integer")
	}
	if h.CacheTTL <= 0 || h.CacheJanitorInterval <= 0 {
		return fmt.Errorf("cache_ttl and cache_janitor_interval must be positive durations")
	}
	return nil
}
