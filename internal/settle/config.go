package settle

import (
	"fmt"
	"math"
	"time"

	"github.com/steveyegge/pnpsetup/internal/types"
)

const (
	// BaselineDebounce is the number of settled frames the baseline requires
	BaselineDebounce = 2
	// BaselineThreshold is the motion detection threshold of the baseline
	BaselineThreshold = 1.0
	// BlurPerPixelResolution scales the wanted pixel resolution into a blur kernel size
	BlurPerPixelResolution = 5.0
)

// EscalatedMaskCircle is the relative mask radius of the escalated
// configuration. A radius of √2 covers the whole frame including corners.
var EscalatedMaskCircle = math.Sqrt2

// WantedPixelResolution converts the wanted resolution in millimeters into
// pixels using the camera's X scale (millimeters per pixel).
func WantedPixelResolution(wantedMm, unitsPerPixelX float64) (float64, error) {
	if wantedMm <= 0 || math.IsNaN(wantedMm) {
		return 0, &ConfigurationError{Reason: fmt.Sprintf("wanted resolution must be positive (got %gmm)", wantedMm)}
	}
	if unitsPerPixelX <= 0 || math.IsNaN(unitsPerPixelX) || math.IsInf(unitsPerPixelX, 0) {
		return 0, &ConfigurationError{Reason: "units per pixel are not calibrated"}
	}
	return wantedMm / unitsPerPixelX, nil
}

// GaussianBlurKernel returns round(wantedPixelRes*5) forced to an odd
// kernel size of at least 1.
func GaussianBlurKernel(wantedPixelRes float64) int {
	if wantedPixelRes <= 0 || math.IsNaN(wantedPixelRes) {
		return 1
	}
	k := int(math.Round(wantedPixelRes*BlurPerPixelResolution)) | 1
	if k < 1 {
		return 1
	}
	return k
}

// BaselineConfig is the cheap first-tier configuration: plain motion
// detection on a blurred grayscale image.
func BaselineConfig(wantedPixelRes float64, zeroKnowledgeTimeout time.Duration) types.SettleConfig {
	return types.SettleConfig{
		Method:          types.SettleMotionDetect,
		MaskCircle:      0,
		Debounce:        BaselineDebounce,
		FullColor:       false,
		Gradients:       false,
		ContrastEnhance: false,
		Threshold:       BaselineThreshold,
		GaussianBlur:    GaussianBlurKernel(wantedPixelRes),
		Timeout:         zeroKnowledgeTimeout,
		Diagnostics:     true,
	}
}

// EscalatedConfig derives the second-tier configuration from base: maximum
// pixel difference inside a circular mask.
func EscalatedConfig(base types.SettleConfig, maximumPixelDiff float64) types.SettleConfig {
	cfg := base
	cfg.Method = types.SettleMaximumDiff
	cfg.MaskCircle = EscalatedMaskCircle
	cfg.Threshold = maximumPixelDiff
	return cfg
}

// OffsetPoints returns the two test move points straddling loc by half the
// test move distance on both axes. The points are symmetric about loc and
// differ by exactly testMove on X and on Y.
func OffsetPoints(loc types.Location, testMove float64) (types.Location, types.Location) {
	half := types.Location{X: testMove / 2, Y: testMove / 2}
	return loc.Subtract(half), loc.Add(half)
}
