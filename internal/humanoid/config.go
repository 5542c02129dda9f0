// internal/humanoid/config.go
package humanoid

import "time"

// Config holds the parameters of the cursor motion model.
type Config struct {
	// Seed position bounds. The pointer starts somewhere inside this viewport.
	ViewportWidth  float64 `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight float64 `mapstructure:"viewport_height" yaml:"viewport_height"`

	// Movement duration: BaseDuration + MsPerUnit*distance +/- DurationJitter.
	BaseDuration   time.Duration `mapstructure:"base_duration" yaml:"base_duration"`
	MsPerUnit      float64       `mapstructure:"ms_per_unit" yaml:"ms_per_unit"`
	DurationJitter time.Duration `mapstructure:"duration_jitter" yaml:"duration_jitter"`
	MinDuration    time.Duration `mapstructure:"min_duration" yaml:"min_duration"`
	StepInterval   time.Duration `mapstructure:"step_interval" yaml:"step_interval"`

	// Bezier control point noise, std-dev = clamp(distance*scale, min, max).
	ControlNoiseScale float64 `mapstructure:"control_noise_scale" yaml:"control_noise_scale"`
	ControlNoiseMin   float64 `mapstructure:"control_noise_min" yaml:"control_noise_min"`
	ControlNoiseMax   float64 `mapstructure:"control_noise_max" yaml:"control_noise_max"`
	TremorAmplitude   float64 `mapstructure:"tremor_amplitude" yaml:"tremor_amplitude"`

	// Overshoot and correction
	OvershootDistance    float64       `mapstructure:"overshoot_distance" yaml:"overshoot_distance"`
	OvershootProbability float64       `mapstructure:"overshoot_probability" yaml:"overshoot_probability"`
	OvershootScaleMin    float64       `mapstructure:"overshoot_scale_min" yaml:"overshoot_scale_min"`
	OvershootScaleMax    float64       `mapstructure:"overshoot_scale_max" yaml:"overshoot_scale_max"`
	OvershootLateral     float64       `mapstructure:"overshoot_lateral" yaml:"overshoot_lateral"`
	OvershootPauseMin    time.Duration `mapstructure:"overshoot_pause_min" yaml:"overshoot_pause_min"`
	OvershootPauseMax    time.Duration `mapstructure:"overshoot_pause_max" yaml:"overshoot_pause_max"`
	CorrectionMin        time.Duration `mapstructure:"correction_min" yaml:"correction_min"`
	CorrectionMax        time.Duration `mapstructure:"correction_max" yaml:"correction_max"`

	// Stability wait
	StabilityPoll      time.Duration `mapstructure:"stability_poll" yaml:"stability_poll"`
	StabilityTimeout   time.Duration `mapstructure:"stability_timeout" yaml:"stability_timeout"`
	StabilityTolerance float64       `mapstructure:"stability_tolerance" yaml:"stability_tolerance"`
	StablePolls        int           `mapstructure:"stable_polls" yaml:"stable_polls"`

	// Aiming
	TrackingIterations int     `mapstructure:"tracking_iterations" yaml:"tracking_iterations"`
	Margin             float64 `mapstructure:"margin" yaml:"margin"`
	PrecisionMargin    float64 `mapstructure:"precision_margin" yaml:"precision_margin"`

	// Press
	HoldMean   time.Duration `mapstructure:"hold_mean" yaml:"hold_mean"`
	HoldStdDev time.Duration `mapstructure:"hold_std_dev" yaml:"hold_std_dev"`
	HoldMin    time.Duration `mapstructure:"hold_min" yaml:"hold_min"`
	HoldMax    time.Duration `mapstructure:"hold_max" yaml:"hold_max"`

	// Whole-click retries, backoff RetryBase * 2^attempt.
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryBase  time.Duration `mapstructure:"retry_base" yaml:"retry_base"`
}

// DefaultConfig returns the motion parameters of an average operator.
func DefaultConfig() Config {
	return Config{
		ViewportWidth:        1366,
		ViewportHeight:       768,
		BaseDuration:         250 * time.Millisecond,
		MsPerUnit:            0.4,
		DurationJitter:       50 * time.Millisecond,
		MinDuration:          60 * time.Millisecond,
		StepInterval:         16 * time.Millisecond,
		ControlNoiseScale:    0.15,
		ControlNoiseMin:      20,
		ControlNoiseMax:      200,
		TremorAmplitude:      1.5,
		OvershootDistance:    500,
		OvershootProbability: 0.2,
		OvershootScaleMin:    1.05,
		OvershootScaleMax:    1.15,
		OvershootLateral:     20,
		OvershootPauseMin:    80 * time.Millisecond,
		OvershootPauseMax:    300 * time.Millisecond,
		CorrectionMin:        150 * time.Millisecond,
		CorrectionMax:        300 * time.Millisecond,
		StabilityPoll:        100 * time.Millisecond,
		StabilityTimeout:     2500 * time.Millisecond,
		StabilityTolerance:   2,
		StablePolls:          3,
		TrackingIterations:   3,
		Margin:               0.15,
		PrecisionMargin:      0.35,
		HoldMean:             60 * time.Millisecond,
		HoldStdDev:           20 * time.Millisecond,
		HoldMin:              20 * time.Millisecond,
		HoldMax:              150 * time.Millisecond,
		MaxRetries:           2,
		RetryBase:            time.Second,
	}
}

// BaseMoveDuration is the jitter-free movement duration for a path of length dist.
// It is non-decreasing in dist.
func (c Config) BaseMoveDuration(dist float64) time.Duration {
	if dist < 0 || dist != dist {
		dist = 0
	}
	return c.BaseDuration + time.Duration(c.MsPerUnit*dist*float64(time.Millisecond))
}
