// internal/config/config.go
package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/actuator/internal/escalation"
	"github.com/xkilldash9x/actuator/internal/humanoid"
	"github.com/xkilldash9x/actuator/internal/monitor"
	"github.com/xkilldash9x/actuator/internal/session"
)

// Browser drivers.
const (
	DriverCDP = "cdp"
	DriverRod = "rod"
)

// Interface defines the contract for accessing application configuration.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Humanoid() humanoid.Config
	Executor() escalation.Config
	Monitor() monitor.Config
	Session() session.Config

	SetBrowserHeadless(bool)
	SetBrowserDriver(string)
	SetSessionSeed(int64)
	SetSessionDeadline(time.Duration)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	BrowserCfg  BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	HumanoidCfg humanoid.Config   `mapstructure:"humanoid" yaml:"humanoid"`
	ExecutorCfg escalation.Config `mapstructure:"executor" yaml:"executor"`
	MonitorCfg  monitor.Config    `mapstructure:"monitor" yaml:"monitor"`
	SessionCfg  session.Config    `mapstructure:"session" yaml:"session"`
}

func (c *Config) Logger() LoggerConfig        { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig      { return c.BrowserCfg }
func (c *Config) Humanoid() humanoid.Config   { return c.HumanoidCfg }
func (c *Config) Executor() escalation.Config { return c.ExecutorCfg }
func (c *Config) Monitor() monitor.Config     { return c.MonitorCfg }
func (c *Config) Session() session.Config     { return c.SessionCfg }

func (c *Config) SetBrowserHeadless(b bool)          { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserDriver(d string)          { c.BrowserCfg.Driver = d }
func (c *Config) SetSessionSeed(s int64)             { c.SessionCfg.Seed = s }
func (c *Config) SetSessionDeadline(d time.Duration) { c.SessionCfg.Deadline = d }

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

// BrowserConfig selects and launches the browser the session drives.
type BrowserConfig struct {
	// Driver is "cdp" for chromedp or "rod" for go-rod.
	Driver string `mapstructure:"driver" yaml:"driver"`
	// ControlURL attaches to a running browser instead of launching one.
	ControlURL     string        `mapstructure:"control_url" yaml:"control_url"`
	BinaryPath     string        `mapstructure:"binary_path" yaml:"binary_path"`
	Headless       bool          `mapstructure:"headless" yaml:"headless"`
	DisableGPU     bool          `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	Args           []string      `mapstructure:"args" yaml:"args"`
	ViewportWidth  int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	ActionTimeout  time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	// StartURL is opened first when neither the plan nor --url names one.
	StartURL string `mapstructure:"start_url" yaml:"start_url"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "actuator")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.driver", DriverCDP)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.viewport_width", 1366)
	v.SetDefault("browser.viewport_height", 768)
	v.SetDefault("browser.action_timeout", "15s")
	v.SetDefault("browser.start_url", "")

	// -- Engine sections --
	setStructDefaults(v, "humanoid", humanoid.DefaultConfig())
	setStructDefaults(v, "executor", escalation.DefaultConfig())
	setStructDefaults(v, "monitor", monitor.DefaultConfig())
	setStructDefaults(v, "session", session.DefaultConfig())
}

// setStructDefaults registers every mapstructure-tagged field of def under prefix.
// Nested structs are flattened so each leaf can be overridden from the environment.
func setStructDefaults(v *viper.Viper, prefix string, def any) {
	val := reflect.ValueOf(def)
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if tag == "" || tag == "-" || !f.IsExported() {
			continue
		}
		key := prefix + "." + tag
		fv := val.Field(i)
		if fv.Kind() == reflect.Struct {
			setStructDefaults(v, key, fv.Interface())
			continue
		}
		v.SetDefault(key, fv.Interface())
	}
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	v.BindEnv("browser.control_url", "ACTUATOR_CONTROL_URL")
	v.BindEnv("browser.binary_path", "CHROME_BIN")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	var err error
	if cfg.LoggerCfg.LogFile, err = homedir.Expand(cfg.LoggerCfg.LogFile); err != nil {
		return nil, fmt.Errorf("expanding logger.log_file: %w", err)
	}
	if cfg.BrowserCfg.BinaryPath, err = homedir.Expand(cfg.BrowserCfg.BinaryPath); err != nil {
		return nil, fmt.Errorf("expanding browser.binary_path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.BrowserCfg.Driver {
	case DriverCDP, DriverRod:
	default:
		return fmt.Errorf("browser.driver must be %q or %q, got %q", DriverCDP, DriverRod, c.BrowserCfg.Driver)
	}
	if c.BrowserCfg.ViewportWidth <= 0 || c.BrowserCfg.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport must be positive")
	}
	if c.BrowserCfg.ActionTimeout <= 0 {
		return fmt.Errorf("browser.action_timeout must be a positive duration")
	}
	if err := validateHumanoid(c.HumanoidCfg); err != nil {
		return fmt.Errorf("humanoid configuration invalid: %w", err)
	}
	if err := validateExecutor(c.ExecutorCfg); err != nil {
		return fmt.Errorf("executor configuration invalid: %w", err)
	}
	if err := validateMonitor(c.MonitorCfg); err != nil {
		return fmt.Errorf("monitor configuration invalid: %w", err)
	}
	if err := validateSession(c.SessionCfg); err != nil {
		return fmt.Errorf("session configuration invalid: %w", err)
	}
	return nil
}

func validateHumanoid(h humanoid.Config) error {
	if h.StepInterval <= 0 {
		return fmt.Errorf("step_interval must be a positive duration")
	}
	if h.HoldMin > h.HoldMax {
		return fmt.Errorf("hold_min must not exceed hold_max")
	}
	if h.OvershootProbability < 0 || h.OvershootProbability > 1 {
		return fmt.Errorf("overshoot_probability must be between 0.0 and 1.0")
	}
	if h.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	return nil
}

func validateExecutor(e escalation.Config) error {
	if e.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be a positive integer")
	}
	if e.VerifyPoll <= 0 || e.VerifyTimeout <= 0 {
		return fmt.Errorf("verify_poll and verify_timeout must be positive durations")
	}
	return nil
}

func validateMonitor(m monitor.Config) error {
	if m.SoftErrorCeiling <= 0 {
		return fmt.Errorf("soft_error_ceiling must be a positive integer")
	}
	if m.InactivityLimit <= 0 {
		return fmt.Errorf("inactivity_limit must be a positive duration")
	}
	if m.FatigueMin > m.FatigueMax {
		return fmt.Errorf("fatigue_min must not exceed fatigue_max")
	}
	if m.BurstProbability < 0 || m.BurstProbability > 1 {
		return fmt.Errorf("burst_probability must be between 0.0 and 1.0")
	}
	return nil
}

func validateSession(s session.Config) error {
	if s.Deadline <= 0 {
		return fmt.Errorf("deadline must be a positive duration")
	}
	if s.MaxActionsPerMinute < 0 {
		return fmt.Errorf("max_actions_per_minute must not be negative")
	}
	if _, ok := s.Profiles[s.Profile]; !ok && s.Profile != session.ProfileDefault {
		return fmt.Errorf("profile %q is not defined", s.Profile)
	}
	return nil
}
