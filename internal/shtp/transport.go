// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package shtp implements the framed packet transport beneath the sensor-hub
// protocol: half-duplex, length-prefixed exchanges over a clocked SPI bus,
// gated by the device's active-low ready line.
//
// Timeouts and protocol errors are non-fatal and surface as zero-length
// results. Retry and backoff policy belongs to the caller.
package shtp

import (
	"encoding/binary"
	"fmt"

	"periph.io/x/conn/v3/gpio"

	"github.com/relabs-tech/airdrum/internal/clock"
)

// Header is the fixed packet prefix: 2-byte little-endian length (bit 15 is
// a continuation flag and must be masked), then channel and sequence bytes.
const HeaderLen = 4

// continuationBit marks a fragmented packet in the length field.
const continuationBit = 0x8000

const (
	// openWaitMs bounds the ready wait in Open and in the payload and write
	// phases. The device asserts ready within ~94ms of reset; 500ms is safe.
	openWaitMs = 500
	// readWaitMs bounds the ready wait at the start of Read. Short, so an
	// idle device costs the polling loop at most ~20ms per call.
	readWaitMs = 20
)

// Bus is the byte-level transfer primitive: a full-duplex exchange of one
// byte, internally bounded by a spin timeout. On a stalled bus Exchange
// returns the sentinel 0xFF; callers must treat runs of 0xFF as evidence of
// a stall, not as data.
type Bus interface {
	Exchange(tx byte) byte
	// Healthy reports whether the controller still holds its expected
	// configuration (enabled, master).
	Healthy() bool
	// Reconfigure fully rewrites the controller configuration: disable,
	// drain, rewrite atomically, re-enable.
	Reconfigure() error
}

// OutputPin is the subset of gpio.PinOut the transport drives (chip select).
type OutputPin interface {
	Out(l gpio.Level) error
}

// InputPin is the subset of gpio.PinIn the transport samples (ready line,
// active low).
type InputPin interface {
	Read() gpio.Level
}

// Counters are per-instance diagnostic counters, not process-wide, so that
// multiple transports can coexist and tests stay deterministic.
type Counters struct {
	Reads            uint32
	ReadyTimeouts    uint32
	ShortHeaders     uint32
	Oversized        uint32
	PayloadTimeouts  uint32
	Recoveries       uint32
	RecoveryFailures uint32
	Writes           uint32
	WriteTimeouts    uint32
}

// Transport exchanges framed packets with the sensor device.
//
// There is no persistent "open" state: every call re-validates readiness
// from the ready line. Only one exchange may be in flight at a time; the
// transport is not safe for concurrent use.
type Transport struct {
	bus   Bus
	cs    OutputPin
	ready InputPin
	clk   clock.Source

	Diag Counters
}

// New wires a transport over an already-configured bus and pins. The ready
// line is active low: low means the device has data or will accept a write.
func New(bus Bus, cs OutputPin, ready InputPin, clk clock.Source) *Transport {
	return &Transport{bus: bus, cs: cs, ready: ready, clk: clk}
}

// Open waits for the device to assert the ready line after power-up or
// reset. It does not retry; the caller decides whether to reset and try
// again.
func (t *Transport) Open() error {
	if t.waitReady(openWaitMs) {
		return nil
	}
	return fmt.Errorf("shtp: device not ready after %dms", openWaitMs)
}

// Close is deliberately a no-op. The bus controller is shared with other
// devices and must stay configured; the protocol layer above calls Close
// during its own shutdown paths.
func (t *Transport) Close() {}

// Micros returns the transport timestamp in microseconds. The underlying
// counter ticks per millisecond, so the value is ms×1000 — a documented
// granularity limitation, not a bug.
func (t *Transport) Micros() uint32 {
	return t.clk.Micros()
}

// Read receives one packet into p. It returns the packet length (including
// the 4-byte header), or 0 when no data is ready, on a protocol error, or
// when the packet does not fit in p.
//
// When the declared length exceeds len(p) the header bytes have already
// been written to p[0:4] — a documented side effect; the caller retries
// with adequate capacity (there is no fragmentation support here).
func (t *Transport) Read(p []byte) int {
	t.Diag.Reads++
	if len(p) < HeaderLen {
		t.Diag.Oversized++
		return 0
	}

	// Short bounded wait: no ready assertion means no data, not an error.
	if !t.waitReady(readWaitMs) {
		t.Diag.ReadyTimeouts++
		return 0
	}

	if !t.recoverBus() {
		return 0
	}

	// Header phase. Chip select deasserts the ready line.
	t.cs.Out(gpio.Low)
	for i := 0; i < HeaderLen; i++ {
		p[i] = t.bus.Exchange(0x00)
	}
	t.cs.Out(gpio.High)

	length := int(binary.LittleEndian.Uint16(p[0:2]) &^ continuationBit)

	if length < HeaderLen {
		// Malformed header; nothing sane to stream.
		t.Diag.ShortHeaders++
		return 0
	}
	if length > len(p) {
		t.Diag.Oversized++
		return 0
	}
	if length == HeaderLen {
		// Header-only packet.
		return length
	}

	// Payload phase: the device re-asserts ready when the body is staged.
	if !t.waitReady(openWaitMs) {
		t.Diag.PayloadTimeouts++
		return 0
	}

	t.cs.Out(gpio.Low)
	for i := HeaderLen; i < length; i++ {
		p[i] = t.bus.Exchange(0x00)
	}
	t.cs.Out(gpio.High)

	return length
}

// Write sends p as one transaction. Returns len(p), or 0 if the device
// never signalled readiness within the bound.
func (t *Transport) Write(p []byte) int {
	t.Diag.Writes++
	if !t.waitReady(openWaitMs) {
		t.Diag.WriteTimeouts++
		return 0
	}

	t.cs.Out(gpio.Low)
	for _, b := range p {
		t.bus.Exchange(b)
	}
	t.cs.Out(gpio.High)

	return len(p)
}

// waitReady polls the active-low ready line for up to boundMs milliseconds.
// The line is sampled once before sleeping so an already-asserted ready
// costs nothing.
func (t *Transport) waitReady(boundMs int) bool {
	if t.ready.Read() == gpio.Low {
		return true
	}
	for i := 0; i < boundMs; i++ {
		t.clk.SleepMs(1)
		if t.ready.Read() == gpio.Low {
			return true
		}
	}
	return false
}

// recoverBus gives a misconfigured controller one self-healing attempt.
// Reports whether the bus is usable.
func (t *Transport) recoverBus() bool {
	if t.bus.Healthy() {
		return true
	}
	t.Diag.Recoveries++
	if err := t.bus.Reconfigure(); err != nil || !t.bus.Healthy() {
		t.Diag.RecoveryFailures++
		return false
	}
	return true
}
