// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sensorhub is the thin SH-2 consumer sitting on the shtp transport:
// reset sequencing, feature enabling, and input-report decoding. Packet
// multiplexing beyond the report channel and the full command vocabulary are
// intentionally not implemented; the classifier only needs the game rotation
// vector and the calibrated gyro.
package sensorhub

import (
	"encoding/binary"
	"fmt"
	"log"

	"periph.io/x/conn/v3/gpio"

	"github.com/relabs-tech/airdrum/internal/clock"
	"github.com/relabs-tech/airdrum/internal/gesture"
	"github.com/relabs-tech/airdrum/internal/shtp"
)

// SHTP channels.
const (
	channelCommand    = 0
	channelExecutable = 1
	channelControl    = 2
	channelReports    = 3
)

// Report ids.
const (
	reportSetFeature    = 0xFD
	reportBaseTimestamp = 0xFB

	// ReportGyro is the calibrated gyroscope input report (rad/s, Q9).
	ReportGyro = 0x02
	// ReportGameRotation is the game rotation vector input report (Q14).
	ReportGameRotation = 0x08
)

// Input report body lengths, including the 4-byte report header
// (id, sequence, status, delay).
const (
	gyroReportLen     = 10
	rotationReportLen = 12
	timestampLen      = 5
)

// Fixed-point scale factors from the SH-2 report definitions.
const (
	scaleQ14 = 1.0 / 16384.0 // quaternion components
	scaleQ9  = 1.0 / 512.0   // rad/s
)

// maxPacket bounds a single transport read. The hub never sends larger
// cargo than this on the report channel.
const maxPacket = 512

// Hub drives one BNO085-class sensor hub.
type Hub struct {
	tr  *shtp.Transport
	rst shtp.OutputPin
	clk clock.Source

	seq [4]uint8
	buf [maxPacket]byte

	// UnknownReports counts report ids the decoder cannot size. Decoding of
	// a packet stops at the first one.
	UnknownReports uint32
}

// New wires a hub over an opened transport. rst may be nil when the reset
// line is not under host control.
func New(tr *shtp.Transport, rst shtp.OutputPin, clk clock.Source) *Hub {
	return &Hub{tr: tr, rst: rst, clk: clk}
}

// Reset pulses the reset line and waits out the device's initialization
// window (~94ms per datasheet; 100ms for margin).
func (h *Hub) Reset() {
	if h.rst == nil {
		return
	}
	h.rst.Out(gpio.High)
	h.clk.SleepMs(1)
	h.rst.Out(gpio.Low)
	h.clk.SleepMs(10)
	h.rst.Out(gpio.High)
	h.clk.SleepMs(100)
}

// Start resets the device, waits for it to signal readiness, and drains the
// advertisement traffic it sends after boot.
func (h *Hub) Start() error {
	h.Reset()
	if err := h.tr.Open(); err != nil {
		return fmt.Errorf("sensorhub: %w", err)
	}

	// The hub advertises its channels and then idles. Drain until quiet.
	idle := 0
	for i := 0; i < 200 && idle < 5; i++ {
		if n := h.tr.Read(h.buf[:]); n == 0 {
			idle++
		} else {
			idle = 0
		}
		h.clk.SleepMs(10)
	}
	return nil
}

// EnableReport asks the hub to produce an input report periodically.
// intervalUS is the report interval in microseconds (10000 = 100Hz).
func (h *Hub) EnableReport(reportID byte, intervalUS uint32) error {
	frame := setFeatureFrame(reportID, intervalUS)
	if n := h.sendControl(frame); n == 0 {
		return fmt.Errorf("sensorhub: enable report 0x%02X: write timeout", reportID)
	}
	log.Printf("sensorhub: enabled report 0x%02X at %dus interval", reportID, intervalUS)
	return nil
}

// Poll reads at most one packet from the transport and decodes any input
// reports in it. An empty slice means no data was ready.
func (h *Hub) Poll() []gesture.Sample {
	n := h.tr.Read(h.buf[:])
	if n <= shtp.HeaderLen {
		return nil
	}
	if h.buf[2] != channelReports {
		// Control responses and command traffic are not interesting here.
		return nil
	}
	samples, unknown := decodeReports(h.buf[shtp.HeaderLen:n])
	h.UnknownReports += unknown
	return samples
}

// Next implements gesture.SampleSource over Poll. Poll never fails hard —
// transport trouble shows up as empty reads — so the error is always nil.
func (h *Hub) Next() ([]gesture.Sample, error) {
	return h.Poll(), nil
}

// sendControl frames cargo onto the control channel.
func (h *Hub) sendControl(cargo []byte) int {
	packet := make([]byte, shtp.HeaderLen+len(cargo))
	binary.LittleEndian.PutUint16(packet[0:2], uint16(len(packet)))
	packet[2] = channelControl
	packet[3] = h.seq[channelControl]
	h.seq[channelControl]++
	copy(packet[shtp.HeaderLen:], cargo)
	return h.tr.Write(packet)
}

// setFeatureFrame builds a Set Feature command for one sensor report.
func setFeatureFrame(reportID byte, intervalUS uint32) []byte {
	frame := make([]byte, 17)
	frame[0] = reportSetFeature
	frame[1] = reportID
	// flags, change sensitivity: zero
	binary.LittleEndian.PutUint32(frame[5:9], intervalUS)
	// batch interval, sensor-specific: zero
	return frame
}

// decodeReports walks the cargo of a report-channel packet and extracts
// classifier samples. Returns the samples and the count of undecodable
// report ids encountered (each of which ends the walk, since report length
// depends on the id).
func decodeReports(cargo []byte) ([]gesture.Sample, uint32) {
	var samples []gesture.Sample
	var unknown uint32

	for len(cargo) > 0 {
		switch cargo[0] {
		case reportBaseTimestamp:
			if len(cargo) < timestampLen {
				return samples, unknown
			}
			cargo = cargo[timestampLen:]

		case ReportGameRotation:
			if len(cargo) < rotationReportLen {
				return samples, unknown
			}
			samples = append(samples, gesture.Sample{
				Kind:  gesture.KindRotation,
				QI:    q14(cargo[4:6]),
				QJ:    q14(cargo[6:8]),
				QK:    q14(cargo[8:10]),
				QReal: q14(cargo[10:12]),
			})
			cargo = cargo[rotationReportLen:]

		case ReportGyro:
			if len(cargo) < gyroReportLen {
				return samples, unknown
			}
			// x, y, z as Q9 rad/s; the detector consumes y scaled ×1000.
			y := float64(int16(binary.LittleEndian.Uint16(cargo[6:8]))) * scaleQ9
			samples = append(samples, gesture.Sample{
				Kind:  gesture.KindGyro,
				GyroY: int16(y * 1000.0),
			})
			cargo = cargo[gyroReportLen:]

		default:
			unknown++
			return samples, unknown
		}
	}
	return samples, unknown
}

func q14(b []byte) float64 {
	return float64(int16(binary.LittleEndian.Uint16(b))) * scaleQ14
}
