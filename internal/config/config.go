package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. SPEEDSCRAPER_BROWSER_HEADLESS
const EnvPrefix = "SPEEDSCRAPER"

// AppConfig holds the complete application configuration
type AppConfig struct {
	Browser   BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Run       RunConfig     `mapstructure:"run" yaml:"run"`
	Providers []string      `mapstructure:"providers" yaml:"providers"`
	Proxies   ProxyConfig   `mapstructure:"proxies" yaml:"proxies"`
	Output    OutputConfig  `mapstructure:"output" yaml:"output"`
	Logger    LoggerConfig  `mapstructure:"logger" yaml:"logger"`
}

// BrowserConfig controls the Chrome instance shared by all providers
type BrowserConfig struct {
	Headless       bool   `mapstructure:"headless" yaml:"headless"`
	ExecPath       string `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent      string `mapstructure:"user_agent" yaml:"user_agent"`
	ViewportWidth  int    `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int    `mapstructure:"viewport_height" yaml:"viewport_height"`
	NoSandbox      bool   `mapstructure:"no_sandbox" yaml:"no_sandbox"`
	// DisableWebSecurity also turns off site isolation so cross-origin
	// result frames stay readable
	DisableWebSecurity bool `mapstructure:"disable_web_security" yaml:"disable_web_security"`
	// NavigationTimeout of zero waits for the ready condition indefinitely
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// RunConfig holds the orchestration settings
type RunConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	// WaitDeadline of zero lets completion waits run forever
	WaitDeadline time.Duration `mapstructure:"wait_deadline" yaml:"wait_deadline"`
	// Pause waits for Enter before the process exits
	Pause bool `mapstructure:"pause" yaml:"pause"`
}

// ProxyConfig holds the proxy configuration
type ProxyConfig struct {
	Enabled bool     `mapstructure:"enabled" yaml:"enabled"`
	Rotate  bool     `mapstructure:"rotate" yaml:"rotate"`
	List    []string `mapstructure:"list" yaml:"list"`
}

// OutputConfig selects how results are printed
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
	Color  bool   `mapstructure:"color" yaml:"color"`
}

// LoggerConfig configures the zap logger
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// Default returns the configuration used when no file is given
func Default() *AppConfig {
	return &AppConfig{
		Browser: BrowserConfig{
			Headless:           true,
			UserAgent:          DefaultUserAgent,
			ViewportWidth:      DefaultViewportWidth,
			ViewportHeight:     DefaultViewportHeight,
			NoSandbox:          true,
			DisableWebSecurity: true,
		},
		Run: RunConfig{
			PollInterval: DefaultPollInterval,
		},
		Output: OutputConfig{
			Format: "table",
			Color:  true,
		},
		Logger: LoggerConfig{
			Level:       "info",
			Format:      "console",
			ServiceName: "speedscraper",
			MaxSize:     10,
			MaxBackups:  3,
			MaxAge:      28,
		},
	}
}

// Load reads the configuration from filename, or from ./speedscraper.yaml
// when filename is empty. A missing default file is not an error.
// Environment variables override file values.
func Load(filename string) (*AppConfig, error) {
	v := viper.New()
	setDefaults(v, Default())

	if filename != "" {
		v.SetConfigFile(filename)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("speedscraper")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if filename != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *AppConfig) {
	v.SetDefault("browser.headless", d.Browser.Headless)
	v.SetDefault("browser.exec_path", d.Browser.ExecPath)
	v.SetDefault("browser.user_agent", d.Browser.UserAgent)
	v.SetDefault("browser.viewport_width", d.Browser.ViewportWidth)
	v.SetDefault("browser.viewport_height", d.Browser.ViewportHeight)
	v.SetDefault("browser.no_sandbox", d.Browser.NoSandbox)
	v.SetDefault("browser.disable_web_security", d.Browser.DisableWebSecurity)
	v.SetDefault("browser.navigation_timeout", d.Browser.NavigationTimeout)

	v.SetDefault("run.poll_interval", d.Run.PollInterval)
	v.SetDefault("run.wait_deadline", d.Run.WaitDeadline)
	v.SetDefault("run.pause", d.Run.Pause)

	v.SetDefault("providers", d.Providers)

	v.SetDefault("proxies.enabled", d.Proxies.Enabled)
	v.SetDefault("proxies.rotate", d.Proxies.Rotate)
	v.SetDefault("proxies.list", d.Proxies.List)

	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("output.color", d.Output.Color)

	v.SetDefault("logger.level", d.Logger.Level)
	v.SetDefault("logger.format", d.Logger.Format)
	v.SetDefault("logger.add_source", d.Logger.AddSource)
	v.SetDefault("logger.service_name", d.Logger.ServiceName)
	v.SetDefault("logger.log_file", d.Logger.LogFile)
	v.SetDefault("logger.max_size", d.Logger.MaxSize)
	v.SetDefault("logger.max_backups", d.Logger.MaxBackups)
	v.SetDefault("logger.max_age", d.Logger.MaxAge)
	v.SetDefault("logger.compress", d.Logger.Compress)
}

// Validate checks values that would otherwise fail late in a run
func (c *AppConfig) Validate() error {
	if c.Run.PollInterval <= 0 {
		return fmt.Errorf("run.poll_interval must be positive, got %v", c.Run.PollInterval)
	}
	if c.Run.WaitDeadline < 0 {
		return fmt.Errorf("run.wait_deadline must not be negative, got %v", c.Run.WaitDeadline)
	}
	if c.Browser.NavigationTimeout < 0 {
		return fmt.Errorf("browser.navigation_timeout must not be negative, got %v", c.Browser.NavigationTimeout)
	}
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport must be positive, got %dx%d", c.Browser.ViewportWidth, c.Browser.ViewportHeight)
	}
	if !validFormat(c.Output.Format) {
		return fmt.Errorf("output.format %q not one of %s", c.Output.Format, strings.Join(OutputFormats, ", "))
	}
	return nil
}

func validFormat(format string) bool {
	for _, f := range OutputFormats {
		if f == format {
			return true
		}
	}
	return false
}

// Marshal encodes the configuration as YAML
func (c *AppConfig) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
