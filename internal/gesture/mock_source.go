// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gesture

import (
	"math"
	"time"
)

// SampleSource is anything that can provide decoded sensor samples over
// time: the real sensor hub, this mock, maybe a replay source from file.
type SampleSource interface {
	// Next returns the decoded samples that arrived since the last call.
	Next() ([]Sample, error)
}

type mockSource struct {
	start time.Time
	n     int
}

// NewMockSource creates a sample source that sweeps the stick across the
// yaw zones and throws a downstroke roughly twice per second. Useful for
// exercising the full pipeline without hardware.
func NewMockSource() SampleSource {
	return &mockSource{start: time.Now()}
}

func (m *mockSource) Next() ([]Sample, error) {
	elapsed := time.Since(m.start).Seconds()
	m.n++

	// Slow yaw sweep expressed as a rotation about the z axis.
	half := elapsed * 0.2 // rad, half-angle of the z rotation
	rot := Sample{
		Kind:  KindRotation,
		QReal: math.Cos(half),
		QK:    math.Sin(half),
	}

	gyro := Sample{Kind: KindGyro, GyroY: 0}
	if m.n%25 == 0 {
		gyro.GyroY = -4000 // downstroke
	}

	return []Sample{rot, gyro}, nil
}
