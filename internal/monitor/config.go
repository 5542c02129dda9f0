// internal/monitor/config.go
package monitor

import "time"

// Marker maps a content needle to the reason code reported when it is found.
type Marker struct {
	Code   string `mapstructure:"code" yaml:"code"`
	Needle string `mapstructure:"needle" yaml:"needle"`
}

// Config holds the thresholds of the session health and fatigue monitor.
type Config struct {
	// Liveness
	InactivityLimit time.Duration `mapstructure:"inactivity_limit" yaml:"inactivity_limit"`
	CriticalMarkers []Marker      `mapstructure:"critical_markers" yaml:"critical_markers"`

	// Soft errors
	SoftErrorMarkers   []string      `mapstructure:"soft_error_markers" yaml:"soft_error_markers"`
	SoftErrorSelectors []string      `mapstructure:"soft_error_selectors" yaml:"soft_error_selectors"`
	RetrySelectors     []string      `mapstructure:"retry_selectors" yaml:"retry_selectors"`
	SoftErrorCeiling   int           `mapstructure:"soft_error_ceiling" yaml:"soft_error_ceiling"`
	SettleDelay        time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`

	// Fatigue
	FatigueMin         time.Duration `mapstructure:"fatigue_min" yaml:"fatigue_min"`
	FatigueMax         time.Duration `mapstructure:"fatigue_max" yaml:"fatigue_max"`
	FatigueDecayWindow time.Duration `mapstructure:"fatigue_decay_window" yaml:"fatigue_decay_window"`
	FatigueProfile     string        `mapstructure:"fatigue_profile" yaml:"fatigue_profile"`

	// Burst
	BurstProbability float64       `mapstructure:"burst_probability" yaml:"burst_probability"`
	BurstMin         time.Duration `mapstructure:"burst_min" yaml:"burst_min"`
	BurstMax         time.Duration `mapstructure:"burst_max" yaml:"burst_max"`
	BurstBoost       float64       `mapstructure:"burst_boost" yaml:"burst_boost"`
	IdleActions      []string      `mapstructure:"idle_actions" yaml:"idle_actions"`
}

// DefaultConfig returns the monitor thresholds used unless configured otherwise.
func DefaultConfig() Config {
	return Config{
		InactivityLimit: 30 * time.Second,
		CriticalMarkers: []Marker{
			{Code: "too_many_redirects", Needle: "ERR_TOO_MANY_REDIRECTS"},
			{Code: "redirect_loop", Needle: "redirected you too many times"},
			{Code: "crashed", Needle: "Aw, Snap!"},
			{Code: "connection_reset", Needle: "ERR_CONNECTION_RESET"},
		},
		SoftErrorMarkers: []string{
			"Something went wrong. Try reloading.",
			"Something went wrong, but don't fret",
		},
		RetrySelectors:     []string{`[role="button"][data-testid="retry"]`, `button[aria-label="Retry"]`},
		SoftErrorCeiling:   3,
		SettleDelay:        3 * time.Second,
		FatigueMin:         3 * time.Minute,
		FatigueMax:         8 * time.Minute,
		FatigueDecayWindow: 10 * time.Minute,
		FatigueProfile:     "fatigued",
		BurstProbability:   0.10,
		BurstMin:           30 * time.Second,
		BurstMax:           60 * time.Second,
		BurstBoost:         2.0,
		IdleActions:        []string{"idle", "pause"},
	}
}
