package config

import (
	"fmt"
	"time"
)

// SettleCalibrationConfig holds the machine-wide settings used when a camera's
// settle method is calibrated.
type SettleCalibrationConfig struct {
	// WantedResolutionMm is the smallest motion (in mm) settle detection must
	// still notice. Divided by the camera scale it yields the wanted pixel
	// resolution, which sizes the Gaussian blur kernel.
	// Default: 0.05, Range: (0, 10]
	WantedResolutionMm float64 `mapstructure:"wanted_resolution_mm"`

	// TestMoveMm is the linear distance of the settle test pattern.
	// The two test points straddle the nominal location by ±TestMoveMm/2 on X and Y.
	// Default: 0.1, Range: [0, 100]
	TestMoveMm float64 `mapstructure:"test_move_mm"`

	// AcceptableComputeTime is the per-frame compute budget of the baseline
	// (motion detect) method. Above it, calibration escalates once.
	// Default: 20ms, Range: (0, 10s]
	AcceptableComputeTime time.Duration `mapstructure:"acceptable_compute_time"`

	// MaximumPixelDiff is the threshold of the escalated (maximum diff) method.
	// Default: 12, Range: (0, 255]
	MaximumPixelDiff float64 `mapstructure:"maximum_pixel_diff"`

	// ZeroKnowledgeSettleTime is the worst case settle timeout used while
	// nothing is known about the machine's dynamics.
	// Default: 1s, Range: (0, 1m]
	ZeroKnowledgeSettleTime time.Duration `mapstructure:"zero_knowledge_settle_time"`

	// SettleDownDelay is the pause after reaching the nominal location that
	// lets post-motion transients decay. It is not part of the measured trial.
	// Default: 1s, Range: [0, 1m]
	SettleDownDelay time.Duration `mapstructure:"settle_down_delay"`

	// CaptureRetryMaxElapsed bounds retries of transient probe faults.
	// 0 disables retries.
	// Default: 5s, Range: [0, 5m]
	CaptureRetryMaxElapsed time.Duration `mapstructure:"capture_retry_max_elapsed"`
}

// DefaultSettleCalibrationConfig returns the default settle calibration configuration
func DefaultSettleCalibrationConfig() SettleCalibrationConfig {
	return SettleCalibrationConfig{
		WantedResolutionMm:      0.05,
		TestMoveMm:              0.1,
		AcceptableComputeTime:   20 * time.Millisecond,
		MaximumPixelDiff:        12,
		ZeroKnowledgeSettleTime: 1 * time.Second,
		SettleDownDelay:         1 * time.Second,
		CaptureRetryMaxElapsed:  5 * time.Second,
	}
}

// Validate checks if the configuration has valid values
func (c SettleCalibrationConfig) Validate() error {
	if c.WantedResolutionMm <= 0 || c.WantedResolutionMm > 10 {
		return fmt.Errorf("wanted_resolution_mm must be in (0, 10] (got %g)", c.WantedResolutionMm)
	}

	if c.TestMoveMm < 0 || c.TestMoveMm > 100 {
		return fmt.Errorf("test_move_mm must be between 0 and 100 (got %g)", c.TestMoveMm)
	}

	if c.AcceptableComputeTime <= 0 || c.AcceptableComputeTime > 10*time.Second {
		return fmt.Errorf("acceptable_compute_time must be in (0, 10s] (got %s)", c.AcceptableComputeTime)
	}

	if c.MaximumPixelDiff <= 0 || c.MaximumPixelDiff > 255 {
		return fmt.Errorf("maximum_pixel_diff must be in (0, 255] (got %g)", c.MaximumPixelDiff)
	}

	if c.ZeroKnowledgeSettleTime <= 0 || c.ZeroKnowledgeSettleTime > time.Minute {
		return fmt.Errorf("zero_knowledge_settle_time must be in (0, 1m] (got %s)", c.ZeroKnowledgeSettleTime)
	}

	if c.SettleDownDelay < 0 || c.SettleDownDelay > time.Minute {
		return fmt.Errorf("settle_down_delay must be between 0 and 1m (got %s)", c.SettleDownDelay)
	}

	if c.CaptureRetryMaxElapsed < 0 || c.CaptureRetryMaxElapsed > 5*time.Minute {
		return fmt.Errorf("capture_retry_max_elapsed must be between 0 and 5m (got %s)", c.CaptureRetryMaxElapsed)
	}

	return nil
}

// String returns a human-readable representation of the config
func (c SettleCalibrationConfig) String() string {
	return fmt.Sprintf(
		"SettleCalibrationConfig{WantedResolution: %gmm, TestMove: %gmm, "+
			"AcceptableCompute: %s, MaximumPixelDiff: %g, ZeroKnowledgeSettle: %s, "+
			"SettleDown: %s, CaptureRetry: %s}",
		c.WantedResolutionMm, c.TestMoveMm, c.AcceptableComputeTime,
		c.MaximumPixelDiff, c.ZeroKnowledgeSettleTime, c.SettleDownDelay,
		c.CaptureRetryMaxElapsed,
	)
}
