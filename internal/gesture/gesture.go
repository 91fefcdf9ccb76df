// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package gesture turns orientation and angular-rate samples into drum
// trigger events.
//
// The detector is a two-state latch: ARMED until the y-axis angular rate
// crosses below the hit threshold, LATCHED until it returns above it. The
// hit is classified on the first crossing using the most recent calibrated
// (yaw, pitch). There is no timed dwell window; hysteresis around the single
// threshold is the whole debounce.
package gesture

import (
	"sync"

	"github.com/relabs-tech/airdrum/internal/events"
	"github.com/relabs-tech/airdrum/internal/orientation"
)

// Kind discriminates sensor sample types.
type Kind int

const (
	KindUnknown Kind = iota
	// KindRotation carries a game-rotation-vector quaternion.
	KindRotation
	// KindGyro carries calibrated angular rate.
	KindGyro
)

// Sample is one decoded sensor-hub report.
type Sample struct {
	Kind Kind

	// Rotation quaternion, valid for KindRotation.
	QReal, QI, QJ, QK float64

	// Y-axis angular rate in scaled units (rad/s × 1000), valid for KindGyro.
	GyroY int16
}

// Detector holds the hit-detection state for one stick.
type Detector struct {
	mu        sync.Mutex
	threshold int16
	yawOffset float64

	// cached from the latest rotation sample, calibration applied
	lastPose orientation.Pose

	latched   bool
	lastSound events.Sound
}

// New creates a detector. threshold must be negative: a hit is the downstroke
// crossing below it.
func New(threshold int16) *Detector {
	return &Detector{
		threshold: threshold,
		lastSound: events.None,
	}
}

// SetYawOffset replaces the calibration offset. Every subsequent rotation
// sample is evaluated as NormalizeYaw(yaw - offset).
func (d *Detector) SetYawOffset(offset float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.yawOffset = offset
}

// ZeroYaw re-zeroes the calibration to the current heading: the raw yaw the
// stick is pointing at now becomes calibrated 0. Composes with any previous
// offset, so repeated calibration at the same heading is stable.
func (d *Detector) ZeroYaw() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.yawOffset = orientation.NormalizeYaw(d.yawOffset + d.lastPose.Yaw)
	d.lastPose.Yaw = 0
	return d.yawOffset
}

// YawOffset returns the current calibration offset.
func (d *Detector) YawOffset() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.yawOffset
}

// Pose returns the latest calibrated pose seen by the detector.
func (d *Detector) Pose() orientation.Pose {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastPose
}

// Process consumes one sample and returns the resolved drum sound, or
// events.None. Rotation samples only update the cached pose; gyro samples
// drive the latch. Unknown sample kinds are ignored.
func (d *Detector) Process(s Sample) events.Sound {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch s.Kind {
	case KindRotation:
		pose := orientation.FromQuaternion(s.QReal, s.QI, s.QJ, s.QK)
		pose.Yaw = orientation.NormalizeYaw(pose.Yaw - d.yawOffset)
		d.lastPose = pose

	case KindGyro:
		if s.GyroY < d.threshold && !d.latched {
			d.latched = true
			sound := classify(d.lastPose.Yaw, d.lastPose.Pitch)
			d.lastSound = sound
			return sound
		}
		if s.GyroY >= d.threshold && d.latched {
			// Stroke finished; re-arm without emitting.
			d.latched = false
		}
	}

	return events.None
}

// LastSound returns the most recently resolved sound.
func (d *Detector) LastSound() events.Sound {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSound
}

// classify maps a calibrated (yaw, pitch) to a drum voice. Yaw zones are in
// degrees and wrap at 0/360; the first matching zone wins, so the 20°
// boundary belongs to the snare zone.
func classify(yaw, pitch float64) events.Sound {
	switch {
	case yaw >= 20.0 && yaw <= 120.0:
		return events.Snare
	case yaw >= 340.0 || yaw < 20.0:
		if pitch > 50.0 {
			return events.Crash
		}
		return events.HighTom
	case yaw >= 305.0 && yaw < 340.0:
		if pitch > 50.0 {
			return events.Ride
		}
		return events.MidTom
	case yaw >= 200.0 && yaw < 305.0:
		if pitch > 30.0 {
			return events.Ride
		}
		return events.LowTom
	default:
		return events.None
	}
}
