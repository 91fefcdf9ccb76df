// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package shtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"

	"github.com/relabs-tech/airdrum/internal/clock"
)

// scriptBus serves a canned byte stream and records what was clocked out.
type scriptBus struct {
	rx      []byte
	pos     int
	tx      []byte
	healthy bool

	reconfigure    func() error
	reconfigureRan int
}

func newScriptBus(rx []byte) *scriptBus {
	return &scriptBus{rx: rx, healthy: true}
}

func (b *scriptBus) Exchange(tx byte) byte {
	b.tx = append(b.tx, tx)
	if b.pos >= len(b.rx) {
		return 0xFF
	}
	v := b.rx[b.pos]
	b.pos++
	return v
}

func (b *scriptBus) Healthy() bool { return b.healthy }

func (b *scriptBus) Reconfigure() error {
	b.reconfigureRan++
	if b.reconfigure != nil {
		return b.reconfigure()
	}
	b.healthy = true
	return nil
}

// fakePin is both the chip-select output and the ready input.
type fakePin struct {
	level gpio.Level
	log   []gpio.Level
}

func (p *fakePin) Out(l gpio.Level) error {
	p.level = l
	p.log = append(p.log, l)
	return nil
}

func (p *fakePin) Read() gpio.Level { return p.level }

// readyPin models the active-low interrupt line at a fixed state.
type readyPin struct {
	asserted bool
}

func (p *readyPin) Read() gpio.Level {
	if p.asserted {
		return gpio.Low
	}
	return gpio.High
}

func newTransport(bus Bus, ready InputPin) (*Transport, *fakePin, *clock.Mock) {
	cs := &fakePin{level: gpio.High}
	clk := clock.NewMock()
	return New(bus, cs, ready, clk), cs, clk
}

func TestOpenReadyAsserted(t *testing.T) {
	t.Parallel()

	tr, _, _ := newTransport(newScriptBus(nil), &readyPin{asserted: true})
	assert.NoError(t, tr.Open())
}

func TestOpenTimesOut(t *testing.T) {
	t.Parallel()

	tr, _, clk := newTransport(newScriptBus(nil), &readyPin{asserted: false})
	err := tr.Open()
	require.Error(t, err)
	// The full 500ms bound was waited out in 1ms steps.
	assert.Len(t, clk.Sleeps, 500)
}

func TestReadFullPacket(t *testing.T) {
	t.Parallel()

	// 4-byte header declaring 7 bytes total, then 3 bytes of cargo.
	bus := newScriptBus([]byte{0x07, 0x00, 0x03, 0x01, 0xAA, 0xBB, 0xCC})
	tr, cs, _ := newTransport(bus, &readyPin{asserted: true})

	var p [32]byte
	n := tr.Read(p[:])
	require.Equal(t, 7, n)
	assert.Equal(t, []byte{0x07, 0x00, 0x03, 0x01, 0xAA, 0xBB, 0xCC}, p[:n])
	// Chip select toggled once per phase: low/high for header, low/high for
	// payload.
	assert.Equal(t, []gpio.Level{gpio.Low, gpio.High, gpio.Low, gpio.High}, cs.log)
	assert.Equal(t, uint32(1), tr.Diag.Reads)
}

func TestReadMasksContinuationBit(t *testing.T) {
	t.Parallel()

	// Length 0x8007: continuation flag set, real length 7.
	bus := newScriptBus([]byte{0x07, 0x80, 0x03, 0x00, 0x01, 0x02, 0x03})
	tr, _, _ := newTransport(bus, &readyPin{asserted: true})

	var p [32]byte
	assert.Equal(t, 7, tr.Read(p[:]))
}

func TestReadHeaderOnlyPacket(t *testing.T) {
	t.Parallel()

	bus := newScriptBus([]byte{0x04, 0x00, 0x00, 0x05})
	tr, cs, _ := newTransport(bus, &readyPin{asserted: true})

	var p [32]byte
	n := tr.Read(p[:])
	assert.Equal(t, 4, n)
	// No payload phase.
	assert.Equal(t, []gpio.Level{gpio.Low, gpio.High}, cs.log)
}

func TestReadNotReadyReturnsZero(t *testing.T) {
	t.Parallel()

	tr, cs, clk := newTransport(newScriptBus(nil), &readyPin{asserted: false})

	var p [32]byte
	assert.Equal(t, 0, tr.Read(p[:]))
	assert.Equal(t, uint32(1), tr.Diag.ReadyTimeouts)
	// Short bound: ~20 sleeps, not 500. Chip select never moved.
	assert.Len(t, clk.Sleeps, 20)
	assert.Empty(t, cs.log)
}

func TestReadShortHeaderReturnsZero(t *testing.T) {
	t.Parallel()

	// Declared length 3 < header size: malformed.
	bus := newScriptBus([]byte{0x03, 0x00, 0x00, 0x00})
	tr, cs, _ := newTransport(bus, &readyPin{asserted: true})

	var p [32]byte
	assert.Equal(t, 0, tr.Read(p[:]))
	assert.Equal(t, uint32(1), tr.Diag.ShortHeaders)
	// Header phase only, no payload phase.
	assert.Equal(t, []gpio.Level{gpio.Low, gpio.High}, cs.log)
}

func TestReadOversizedLeavesHeader(t *testing.T) {
	t.Parallel()

	// Declared length 100 exceeds the 8-byte buffer. The call fails but the
	// header bytes are visible in p[0:4] so the caller can size a retry.
	bus := newScriptBus([]byte{0x64, 0x00, 0x03, 0x09})
	tr, _, _ := newTransport(bus, &readyPin{asserted: true})

	var p [8]byte
	assert.Equal(t, 0, tr.Read(p[:]))
	assert.Equal(t, uint32(1), tr.Diag.Oversized)
	assert.Equal(t, []byte{0x64, 0x00, 0x03, 0x09}, p[0:4])
}

func TestReadTinyBufferReturnsZero(t *testing.T) {
	t.Parallel()

	bus := newScriptBus([]byte{0x04, 0x00, 0x00, 0x00})
	tr, cs, _ := newTransport(bus, &readyPin{asserted: true})

	var p [2]byte
	assert.Equal(t, 0, tr.Read(p[:]))
	assert.Empty(t, cs.log)
}

func TestReadRecoversUnhealthyBus(t *testing.T) {
	t.Parallel()

	bus := newScriptBus([]byte{0x04, 0x00, 0x00, 0x00})
	bus.healthy = false
	tr, _, _ := newTransport(bus, &readyPin{asserted: true})

	var p [32]byte
	n := tr.Read(p[:])
	assert.Equal(t, 4, n)
	assert.Equal(t, 1, bus.reconfigureRan)
	assert.Equal(t, uint32(1), tr.Diag.Recoveries)
	assert.Equal(t, uint32(0), tr.Diag.RecoveryFailures)
}

func TestReadRecoveryFailureReturnsZero(t *testing.T) {
	t.Parallel()

	bus := newScriptBus([]byte{0x04, 0x00, 0x00, 0x00})
	bus.healthy = false
	bus.reconfigure = func() error { return assert.AnError }
	tr, cs, _ := newTransport(bus, &readyPin{asserted: true})

	var p [32]byte
	assert.Equal(t, 0, tr.Read(p[:]))
	assert.Equal(t, uint32(1), tr.Diag.RecoveryFailures)
	assert.Empty(t, cs.log)
}

func TestWrite(t *testing.T) {
	t.Parallel()

	bus := newScriptBus(nil)
	tr, cs, _ := newTransport(bus, &readyPin{asserted: true})

	packet := []byte{0x05, 0x00, 0x02, 0x00, 0xFD}
	n := tr.Write(packet)
	require.Equal(t, 5, n)
	assert.Equal(t, packet, bus.tx)
	assert.Equal(t, []gpio.Level{gpio.Low, gpio.High}, cs.log)
	assert.Equal(t, uint32(1), tr.Diag.Writes)
}

func TestWriteTimesOut(t *testing.T) {
	t.Parallel()

	bus := newScriptBus(nil)
	tr, _, clk := newTransport(bus, &readyPin{asserted: false})

	assert.Equal(t, 0, tr.Write([]byte{0x01, 0x02}))
	assert.Equal(t, uint32(1), tr.Diag.WriteTimeouts)
	assert.Empty(t, bus.tx)
	// Write waits the long bound, same as the payload phase.
	assert.Len(t, clk.Sleeps, 500)
}

func TestMicrosGranularity(t *testing.T) {
	t.Parallel()

	tr, _, clk := newTransport(newScriptBus(nil), &readyPin{asserted: true})
	clk.Advance(1500 * 1000 * 1000) // 1.5s

	// Micros is ms×1000 with millisecond granularity.
	assert.Equal(t, uint32(1_500_000), tr.Micros())
	assert.Equal(t, uint32(0), tr.Micros()%1000)
}
