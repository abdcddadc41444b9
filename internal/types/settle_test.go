package types

import (
	"math"
	"testing"
	"time"
)

func TestLocationArithmetic(t *testing.T) {
	a := Location{X: 10, Y: 20, Z: -5, Rotation: 90}
	b := Location{X: 3, Y: 4, Z: 1, Rotation: 45}

	if got := a.Add(b); got != (Location{X: 13, Y: 24, Z: -4, Rotation: 135}) {
		t.Errorf("Add() = %v", got)
	}
	if got := a.Subtract(b); got != (Location{X: 7, Y: 16, Z: -6, Rotation: 45}) {
		t.Errorf("Subtract() = %v", got)
	}

	// Z and rotation do not count
	d := Location{}.LinearDistanceTo(Location{X: 3, Y: 4, Z: 100, Rotation: 180})
	if math.Abs(d-5) > 1e-9 {
		t.Errorf("LinearDistanceTo() = %g, expected 5", d)
	}
}

func TestLocationString(t *testing.T) {
	got := Location{X: 1.5, Y: -2, Z: 0, Rotation: 90}.String()
	expected := "(1.5000, -2.0000, 0.0000, 90.00°)"
	if got != expected {
		t.Errorf("String() = %q, expected %q", got, expected)
	}
}

func TestSettleMethod(t *testing.T) {
	tests := []struct {
		method   SettleMethod
		valid    bool
		adaptive bool
	}{
		{SettleFixedTime, true, false},
		{SettleMotionDetect, true, true},
		{SettleMaximumDiff, true, true},
		{"", false, false},
		{"auto", false, false},
	}

	for _, tt := range tests {
		if got := tt.method.IsValid(); got != tt.valid {
			t.Errorf("%q.IsValid() = %v, expected %v", tt.method, got, tt.valid)
		}
		if got := tt.method.IsAdaptive(); got != tt.adaptive {
			t.Errorf("%q.IsAdaptive() = %v, expected %v", tt.method, got, tt.adaptive)
		}
	}
}

func TestSettleConfigValidate(t *testing.T) {
	valid := SettleConfig{
		Method:       SettleMotionDetect,
		MaskCircle:   0.25,
		Debounce:     1,
		Threshold:    1.0,
		GaussianBlur: 9,
		Timeout:      800 * time.Millisecond,
	}

	tests := []struct {
		name    string
		mutate  func(c *SettleConfig)
		wantErr bool
	}{
		{"valid", func(c *SettleConfig) {}, false},
		{"unknown method", func(c *SettleConfig) { c.Method = "auto" }, true},
		{"negative mask", func(c *SettleConfig) { c.MaskCircle = -0.1 }, true},
		{"negative debounce", func(c *SettleConfig) { c.Debounce = -1 }, true},
		{"even blur", func(c *SettleConfig) { c.GaussianBlur = 8 }, true},
		{"zero blur", func(c *SettleConfig) { c.GaussianBlur = 0 }, true},
		{"adaptive without timeout", func(c *SettleConfig) { c.Timeout = 0 }, true},
		{"fixed time without timeout", func(c *SettleConfig) {
			c.Method = SettleFixedTime
			c.Timeout = 0
			c.FixedTime = 250 * time.Millisecond
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTrialResultPassed(t *testing.T) {
	if !(TrialResult{ComputeTime: 10 * time.Millisecond}).Passed() {
		t.Error("trial without timeout should pass")
	}
	if (TrialResult{TimedOut: true}).Passed() {
		t.Error("timed out trial should not pass")
	}
}

func TestComputeMilliseconds(t *testing.T) {
	r := &CalibrationResult{ComputeTime: 15500 * time.Microsecond}
	if got := r.ComputeMilliseconds(); got != 15 {
		t.Errorf("ComputeMilliseconds() = %d, expected 15", got)
	}
}
