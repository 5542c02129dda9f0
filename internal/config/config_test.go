// internal/config/config_test.go
package config

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/actuator/internal/escalation"
	"github.com/xkilldash9x/actuator/internal/humanoid"
	"github.com/xkilldash9x/actuator/internal/monitor"
	"github.com/xkilldash9x/actuator/internal/session"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "actuator", cfg.Logger().ServiceName)
	assert.Equal(t, DriverCDP, cfg.Browser().Driver)
	assert.True(t, cfg.Browser().Headless)
	assert.Equal(t, 15*time.Second, cfg.Browser().ActionTimeout)

	// Engine sections mirror each package's own defaults.
	assert.Equal(t, humanoid.DefaultConfig(), cfg.Humanoid())
	assert.Equal(t, escalation.DefaultConfig(), cfg.Executor())
	assert.Equal(t, monitor.DefaultConfig(), cfg.Monitor())
	assert.Equal(t, session.DefaultConfig(), cfg.Session())

	assert.NoError(t, cfg.Validate())
}

func TestSetDefaults_FlattensNestedSections(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	assert.True(t, v.IsSet("executor.strategy_backoff.min"))
	assert.Equal(t, 300*time.Millisecond, v.Get("executor.strategy_backoff.min"))
	assert.Equal(t, 3, v.Get("monitor.soft_error_ceiling"))
	assert.Equal(t, "default", v.Get("session.profile"))
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.BrowserCfg.Driver = "webkit" }, "browser.driver must be"},
		{"zero viewport", func(c *Config) { c.BrowserCfg.ViewportWidth = 0 }, "browser viewport must be positive"},
		{"zero action timeout", func(c *Config) { c.BrowserCfg.ActionTimeout = 0 }, "browser.action_timeout"},
		{"zero step interval", func(c *Config) { c.HumanoidCfg.StepInterval = 0 }, "humanoid configuration invalid: step_interval"},
		{"inverted hold", func(c *Config) { c.HumanoidCfg.HoldMin = time.Second }, "hold_min must not exceed hold_max"},
		{"overshoot probability", func(c *Config) { c.HumanoidCfg.OvershootProbability = 1.5 }, "overshoot_probability"},
		{"zero attempts", func(c *Config) { c.ExecutorCfg.MaxAttempts = 0 }, "executor configuration invalid: max_attempts"},
		{"zero verify poll", func(c *Config) { c.ExecutorCfg.VerifyPoll = 0 }, "verify_poll"},
		{"zero ceiling", func(c *Config) { c.MonitorCfg.SoftErrorCeiling = 0 }, "monitor configuration invalid: soft_error_ceiling"},
		{"inverted fatigue", func(c *Config) { c.MonitorCfg.FatigueMin = time.Hour }, "fatigue_min must not exceed fatigue_max"},
		{"burst probability", func(c *Config) { c.MonitorCfg.BurstProbability = -0.1 }, "burst_probability"},
		{"zero deadline", func(c *Config) { c.SessionCfg.Deadline = 0 }, "session configuration invalid: deadline"},
		{"negative rate", func(c *Config) { c.SessionCfg.MaxActionsPerMinute = -1 }, "max_actions_per_minute"},
		{"undefined profile", func(c *Config) { c.SessionCfg.Profile = "sprinter" }, `profile "sprinter" is not defined`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()
	var iface Interface = cfg

	iface.SetBrowserHeadless(false)
	iface.SetBrowserDriver(DriverRod)
	iface.SetSessionSeed(42)
	iface.SetSessionDeadline(5 * time.Minute)

	assert.False(t, iface.Browser().Headless)
	assert.Equal(t, DriverRod, iface.Browser().Driver)
	assert.Equal(t, int64(42), iface.Session().Seed)
	assert.Equal(t, 5*time.Minute, iface.Session().Deadline)
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
browser:
  driver: rod
  args: ["--lang=en-US", "mute-audio"]
executor:
  max_attempts: 3
  strategy_backoff:
    min: 100ms
    max: 200ms
monitor:
  soft_error_markers: ["Oops"]
session:
  profile: careful
  max_actions_per_minute: 2.5
  profiles:
    careful:
      hover_min: 300ms
      hover_max: 1s
      high_precision: true
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, DriverRod, cfg.Browser().Driver)
		assert.Equal(t, []string{"--lang=en-US", "mute-audio"}, cfg.Browser().Args)
		assert.Equal(t, 3, cfg.Executor().MaxAttempts)
		assert.Equal(t, escalation.Range{Min: 100 * time.Millisecond, Max: 200 * time.Millisecond}, cfg.Executor().StrategyBackoff)
		// Untouched keys of a partially configured section keep their defaults.
		assert.Equal(t, escalation.DefaultConfig().VerifyTimeout, cfg.Executor().VerifyTimeout)
		assert.Equal(t, []string{"Oops"}, cfg.Monitor().SoftErrorMarkers)
		assert.Equal(t, 2.5, cfg.Session().MaxActionsPerMinute)

		careful, ok := cfg.Session().Profiles["careful"]
		require.True(t, ok)
		assert.Equal(t, humanoid.MotionProfile{HoverMin: 300 * time.Millisecond, HoverMax: time.Second, HighPrecision: true}, careful)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("executor.max_attempts", 0)

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "max_attempts must be a positive integer")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBufferString("browser:\n  control_url: ws://configfile:9222\n")))

		t.Setenv("ACTUATOR_CONTROL_URL", "ws://envvar:9222")
		t.Setenv("CHROME_BIN", "/opt/chrome/chrome")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "ws://envvar:9222", cfg.Browser().ControlURL)
		assert.Equal(t, "/opt/chrome/chrome", cfg.Browser().BinaryPath)
	})

	t.Run("Home Directory Expansion", func(t *testing.T) {
		home, err := homedir.Dir()
		if err != nil {
			t.Skipf("no home directory: %v", err)
		}
		v := viper.New()
		SetDefaults(v)
		v.Set("logger.log_file", "~/logs/actuator.log")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, "logs", "actuator.log"), cfg.Logger().LogFile)
	})
}
