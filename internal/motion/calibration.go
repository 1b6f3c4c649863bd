package motion

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Vec3 is a per-axis triple.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Calibration holds a 6-point accelerometer calibration.
// Corrected axis = (raw - bias) / scale, everything in g.
type Calibration struct {
	SchemaVersion int    `json:"schema_version"`
	CalibrationAt string `json:"calibration_at"` // RFC3339
	AccelBias     Vec3   `json:"accel_bias"`
	AccelScale    Vec3   `json:"accel_scale"`
}

// LoadCalibration reads a calibration JSON file.
func LoadCalibration(path string) (*Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("calibration: read %s: %w", path, err)
	}

	var cal Calibration
	if err := json.Unmarshal(data, &cal); err != nil {
		return nil, fmt.Errorf("calibration: parse %s: %w", path, err)
	}
	if cal.AccelScale.X == 0 || cal.AccelScale.Y == 0 || cal.AccelScale.Z == 0 {
		return nil, fmt.Errorf("calibration: %s: accel_scale must be non-zero on every axis", path)
	}
	if cal.CalibrationAt != "" {
		if _, err := time.Parse(time.RFC3339, cal.CalibrationAt); err != nil {
			return nil, fmt.Errorf("calibration: %s: invalid calibration_at: %w", path, err)
		}
	}
	return &cal, nil
}

// Apply returns s corrected by the calibration.
func (c *Calibration) Apply(s Sample) Sample {
	return Sample{
		TimestampMs: s.TimestampMs,
		Ax:          (s.Ax - c.AccelBias.X) / c.AccelScale.X,
		Ay:          (s.Ay - c.AccelBias.Y) / c.AccelScale.Y,
		Az:          (s.Az - c.AccelBias.Z) / c.AccelScale.Z,
	}
}

type calibratedSource struct {
	Source
	cal *Calibration
}

// Calibrated wraps src so every delivered sample is corrected by cal.
// A nil cal returns src unchanged.
func Calibrated(src Source, cal *Calibration) Source {
	if cal == nil {
		return src
	}
	return &calibratedSource{Source: src, cal: cal}
}

func (c *calibratedSource) Start(onSample func(Sample), onError func(error)) error {
	return c.Source.Start(func(s Sample) { onSample(c.cal.Apply(s)) }, onError)
}
