package motion

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Poses of the 6-point calibration, in capture order. "+X" means the X
// axis points up.
var Poses = []string{"+X", "-X", "+Y", "-Y", "+Z", "-Z"}

// PoseStats summarizes one static capture.
type PoseStats struct {
	Pose       string  `json:"pose"`
	Samples    int     `json:"samples"`
	Mean       Vec3    `json:"mean"`
	StdDev     Vec3    `json:"stddev"`
	Confidence float64 `json:"confidence"`
}

// ComputeStats returns the per-axis mean and population standard deviation.
func ComputeStats(pose string, values []Sample) PoseStats {
	st := PoseStats{Pose: pose, Samples: len(values)}
	n := float64(len(values))
	if n == 0 {
		return st
	}

	for _, v := range values {
		st.Mean.X += v.Ax
		st.Mean.Y += v.Ay
		st.Mean.Z += v.Az
	}
	st.Mean = Vec3{X: st.Mean.X / n, Y: st.Mean.Y / n, Z: st.Mean.Z / n}

	var vx, vy, vz float64
	for _, v := range values {
		dx, dy, dz := v.Ax-st.Mean.X, v.Ay-st.Mean.Y, v.Az-st.Mean.Z
		vx += dx * dx
		vy += dy * dy
		vz += dz * dz
	}
	st.StdDev = Vec3{X: math.Sqrt(vx / n), Y: math.Sqrt(vy / n), Z: math.Sqrt(vz / n)}
	st.Confidence = stillnessConfidence(st.StdDev)
	return st
}

// stillnessConfidence maps noise to [0,1]: 0.01 g or less is fully still,
// 0.1 g or more is moving.
func stillnessConfidence(std Vec3) float64 {
	worst := math.Max(std.X, math.Max(std.Y, std.Z))
	const still, moving = 0.01, 0.1
	switch {
	case worst <= still:
		return 1
	case worst >= moving:
		return 0
	}
	return 1 - (worst-still)/(moving-still)
}

// SixPoint derives per-axis bias and scale from the six static poses.
// For each axis the up and down means give
//
//	bias  = (up + down) / 2
//	scale = |up - down| / 2
//
// so that (raw - bias) / scale reads ±1 g on that axis.
func SixPoint(stats []PoseStats, at time.Time) (*Calibration, error) {
	means := make(map[string]Vec3, len(stats))
	for _, st := range stats {
		if st.Samples == 0 {
			return nil, fmt.Errorf("calibration: pose %s has no samples", st.Pose)
		}
		means[st.Pose] = st.Mean
	}
	for _, p := range Poses {
		if _, ok := means[p]; !ok {
			return nil, fmt.Errorf("calibration: missing pose %s", p)
		}
	}

	px, mx := means["+X"].X, means["-X"].X
	py, my := means["+Y"].Y, means["-Y"].Y
	pz, mz := means["+Z"].Z, means["-Z"].Z

	scale := Vec3{
		X: math.Abs(px-mx) / 2,
		Y: math.Abs(py-my) / 2,
		Z: math.Abs(pz-mz) / 2,
	}
	if (scale.X+scale.Y+scale.Z)/3 < 0.5 || scale.X == 0 || scale.Y == 0 || scale.Z == 0 {
		return nil, errors.New("calibration: insufficient gravity separation between poses")
	}

	return &Calibration{
		SchemaVersion: 1,
		CalibrationAt: at.UTC().Format(time.RFC3339),
		AccelBias:     Vec3{X: (px + mx) / 2, Y: (py + my) / 2, Z: (pz + mz) / 2},
		AccelScale:    scale,
	}, nil
}
