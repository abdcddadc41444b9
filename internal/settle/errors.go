package settle

import (
	"errors"
	"fmt"
)

// ErrCalibrationInProgress is returned when a calibration for the same
// camera is already running.
var ErrCalibrationInProgress = errors.New("settle calibration already in progress")

// ConfigurationError reports a camera that cannot be calibrated as configured,
// e.g. because its units per pixel were never calibrated.
type ConfigurationError struct {
	Camera string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Camera == "" {
		return fmt.Sprintf("settle configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("settle configuration error for camera %s: %s", e.Camera, e.Reason)
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
