// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gesture

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/airdrum/internal/events"
)

const testThreshold = -2500

// rotationAt builds a rotation sample for the given yaw and pitch (degrees,
// roll zero), using the ZYX euler → quaternion form.
func rotationAt(yawDeg, pitchDeg float64) Sample {
	cy := math.Cos(yawDeg * math.Pi / 360.0)
	sy := math.Sin(yawDeg * math.Pi / 360.0)
	cp := math.Cos(pitchDeg * math.Pi / 360.0)
	sp := math.Sin(pitchDeg * math.Pi / 360.0)
	return Sample{
		Kind:  KindRotation,
		QReal: cp * cy,
		QI:    -sp * sy,
		QJ:    sp * cy,
		QK:    cp * sy,
	}
}

func strike(d *Detector, yawDeg, pitchDeg float64) events.Sound {
	d.Process(rotationAt(yawDeg, pitchDeg))
	sound := d.Process(Sample{Kind: KindGyro, GyroY: -4000})
	// Return above the threshold to re-arm for the next strike.
	d.Process(Sample{Kind: KindGyro, GyroY: 0})
	return sound
}

func TestZoneClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		yaw, pitch float64
		want       events.Sound
	}{
		{"snare center", 70, 0, events.Snare},
		{"snare lower edge", 20, 0, events.Snare},
		{"snare upper edge", 120, 0, events.Snare},
		{"high tom near zero", 10, 0, events.HighTom},
		{"high tom just below snare edge", 19.99, 0, events.HighTom},
		{"high tom wrapped", 350, 0, events.HighTom},
		{"crash high pitch", 10, 60, events.Crash},
		{"crash wrapped", 345, 60, events.Crash},
		{"mid tom", 320, 0, events.MidTom},
		{"ride over mid tom", 320, 60, events.Ride},
		{"low tom", 250, 0, events.LowTom},
		{"ride over low tom", 250, 40, events.Ride},
		{"dead zone", 160, 0, events.None},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			d := New(testThreshold)
			assert.Equal(t, c.want, strike(d, c.yaw, c.pitch))
		})
	}
}

func TestLatchFiresOncePerDownstroke(t *testing.T) {
	t.Parallel()

	d := New(testThreshold)
	d.Process(rotationAt(70, 0))

	// First crossing fires.
	require.Equal(t, events.Snare, d.Process(Sample{Kind: KindGyro, GyroY: -4000}))
	// Staying below the threshold must not re-fire.
	assert.Equal(t, events.None, d.Process(Sample{Kind: KindGyro, GyroY: -5000}))
	assert.Equal(t, events.None, d.Process(Sample{Kind: KindGyro, GyroY: -2600}))
	// Returning above the threshold re-arms silently.
	assert.Equal(t, events.None, d.Process(Sample{Kind: KindGyro, GyroY: 100}))
	// Next downstroke fires again.
	assert.Equal(t, events.Snare, d.Process(Sample{Kind: KindGyro, GyroY: -9000}))
}

func TestThresholdIsExclusive(t *testing.T) {
	t.Parallel()

	d := New(testThreshold)
	d.Process(rotationAt(70, 0))

	// Exactly at the threshold is not a hit; only strictly below fires.
	assert.Equal(t, events.None, d.Process(Sample{Kind: KindGyro, GyroY: testThreshold}))
	assert.Equal(t, events.Snare, d.Process(Sample{Kind: KindGyro, GyroY: testThreshold - 1}))
}

func TestYawOffsetCalibration(t *testing.T) {
	t.Parallel()

	d := New(testThreshold)

	// Without calibration, heading 250 lands in the low tom zone.
	require.Equal(t, events.LowTom, strike(d, 250, 0))

	// Zeroing the yaw reference at 250 moves the same heading to the
	// high tom zone around zero.
	d.SetYawOffset(250)
	assert.InDelta(t, 250.0, d.YawOffset(), 1e-9)
	assert.Equal(t, events.HighTom, strike(d, 250, 0))

	// And the snare zone sits 70° clockwise of the new reference.
	assert.Equal(t, events.Snare, strike(d, 320, 0))
}

// yawDelta is the shortest angular distance between two headings in degrees.
func yawDelta(a, b float64) float64 {
	d := math.Mod(a-b, 360.0)
	if d < -180.0 {
		d += 360.0
	}
	if d > 180.0 {
		d -= 360.0
	}
	return math.Abs(d)
}

func TestZeroYawRepeatedCalibrationIsStable(t *testing.T) {
	t.Parallel()

	// Stick held stationary at raw heading 250°. Zeroing once must bring the
	// calibrated yaw to 0; zeroing again at the same heading must keep it
	// there instead of reverting to the raw value.
	d := New(testThreshold)
	d.Process(rotationAt(250, 0))

	offset := d.ZeroYaw()
	assert.InDelta(t, 250.0, offset, 1e-6)
	assert.InDelta(t, 0.0, d.Pose().Yaw, 1e-6)

	d.Process(rotationAt(250, 0))
	assert.LessOrEqual(t, yawDelta(d.Pose().Yaw, 0), 1e-6)

	offset = d.ZeroYaw()
	assert.InDelta(t, 250.0, offset, 1e-6)
	d.Process(rotationAt(250, 0))
	assert.LessOrEqual(t, yawDelta(d.Pose().Yaw, 0), 1e-6)

	// And the zone table sees the calibrated heading: high tom, not low tom.
	assert.Equal(t, events.HighTom, strike(d, 250, 0))
}

func TestZeroYawComposesWithDrift(t *testing.T) {
	t.Parallel()

	// First calibration at 250, then the mounting drifts 10° and the player
	// re-zeroes: the offset must absorb both.
	d := New(testThreshold)
	d.Process(rotationAt(250, 0))
	d.ZeroYaw()

	d.Process(rotationAt(260, 0))
	assert.InDelta(t, 10.0, d.Pose().Yaw, 1e-6)
	offset := d.ZeroYaw()
	assert.InDelta(t, 260.0, offset, 1e-6)

	d.Process(rotationAt(260, 0))
	assert.LessOrEqual(t, yawDelta(d.Pose().Yaw, 0), 1e-6)
}

func TestYaw360EquivalentToZero(t *testing.T) {
	t.Parallel()

	// An offset that maps the heading to exactly 360 must classify like 0.
	d := New(testThreshold)
	d.SetYawOffset(-360)
	assert.Equal(t, events.HighTom, strike(d, 0, 0))
}

func TestUnknownSampleKindIgnored(t *testing.T) {
	t.Parallel()

	d := New(testThreshold)
	d.Process(rotationAt(70, 0))
	assert.Equal(t, events.None, d.Process(Sample{Kind: KindUnknown, GyroY: -9000}))
	// The latch state was untouched: a real gyro sample still fires.
	assert.Equal(t, events.Snare, d.Process(Sample{Kind: KindGyro, GyroY: -9000}))
}

func TestHitWithoutPoseUsesOrigin(t *testing.T) {
	t.Parallel()

	// No rotation sample seen yet: the zero pose classifies as high tom.
	d := New(testThreshold)
	assert.Equal(t, events.HighTom, d.Process(Sample{Kind: KindGyro, GyroY: -4000}))
}

func TestLastSound(t *testing.T) {
	t.Parallel()

	d := New(testThreshold)
	assert.Equal(t, events.None, d.LastSound())
	strike(d, 70, 0)
	assert.Equal(t, events.Snare, d.LastSound())
}

func TestPoseIsCalibrated(t *testing.T) {
	t.Parallel()

	d := New(testThreshold)
	d.SetYawOffset(90)
	d.Process(rotationAt(100, 0))
	assert.InDelta(t, 10.0, d.Pose().Yaw, 1e-6)
}
