package orientation

import (
	"math"
)

// Pose is the canonical orientation representation shared across the apps.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// FromQuaternion converts a unit quaternion (real, i, j, k) to Euler angles
// in degrees using the standard closed-form conversion.
//
// Near gimbal lock the sine term of the pitch leaves the asin domain; pitch
// is then clamped to ±90° preserving the sign of the term. That is a defined
// result, not an error.
func FromQuaternion(real, i, j, k float64) Pose {
	// Roll (x-axis rotation)
	sinrCosp := 2.0 * (real*i + j*k)
	cosrCosp := 1.0 - 2.0*(i*i+j*j)
	roll := math.Atan2(sinrCosp, cosrCosp) * 180.0 / math.Pi

	// Pitch (y-axis rotation)
	sinp := 2.0 * (real*j - k*i)
	var pitch float64
	if math.Abs(sinp) >= 1.0 {
		pitch = math.Copysign(90.0, sinp)
	} else {
		pitch = math.Asin(sinp) * 180.0 / math.Pi
	}

	// Yaw (z-axis rotation)
	sinyCosp := 2.0 * (real*k + i*j)
	cosyCosp := 1.0 - 2.0*(j*j+k*k)
	yaw := math.Atan2(sinyCosp, cosyCosp) * 180.0 / math.Pi

	return Pose{Roll: roll, Pitch: pitch, Yaw: yaw}
}

// NormalizeYaw wraps a yaw angle into [0,360). Idempotent.
func NormalizeYaw(yaw float64) float64 {
	yaw = math.Mod(yaw, 360.0)
	if yaw < 0 {
		yaw += 360.0
	}
	// A tiny negative input can round up to exactly 360 after the add.
	if yaw >= 360.0 {
		yaw = 0
	}
	return yaw
}
