package audio

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

// Output is the analog output register: a logical level in [0, fullScale],
// write-only from the engine's perspective. The engine owns it exclusively
// for the duration of a playback call.
type Output interface {
	// Enabled reports whether the output channel is currently driving.
	Enabled() bool
	// Enable powers the channel. The engine waits a settle delay before the
	// first write after enabling.
	Enable() error
	// Write latches a new level immediately (no trigger latch).
	Write(value uint16) error
}

// SPIDAC drives an MCP49xx-style DAC over SPI: one 16-bit word per write,
// config nibble in the top bits, left-justified data below it.
type SPIDAC struct {
	port    spi.PortCloser
	conn    spi.Conn
	bits    int
	enabled bool
}

// mcp49xxConfig selects: channel A, unbuffered, gain 1x, active mode.
const mcp49xxConfig = 0x3000

// NewSPIDAC opens the DAC's SPI device. bits is the converter resolution
// (12 for an MCP4921); narrower data is left-justified into the 12-bit
// field so the full output swing is preserved.
func NewSPIDAC(dev string, hz int64, bits int) (*SPIDAC, error) {
	port, err := spireg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("audio: DAC SPI open (%s): %w", dev, err)
	}
	conn, err := port.Connect(physic.Frequency(hz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("audio: DAC SPI connect: %w", err)
	}
	return &SPIDAC{port: port, conn: conn, bits: bits}, nil
}

func (d *SPIDAC) Enabled() bool {
	return d.enabled
}

// Enable wakes the converter from shutdown by latching a mid-scale word
// with the active bit set.
func (d *SPIDAC) Enable() error {
	d.enabled = true
	return d.Write(uint16(1) << (d.bits - 1))
}

func (d *SPIDAC) Write(value uint16) error {
	var word uint16
	if d.bits >= 12 {
		word = mcp49xxConfig | (value >> (d.bits - 12) & 0x0FFF)
	} else {
		word = mcp49xxConfig | (value << (12 - d.bits) & 0x0FFF)
	}
	w := [2]byte{byte(word >> 8), byte(word)}
	if err := d.conn.Tx(w[:], nil); err != nil {
		return fmt.Errorf("audio: DAC write: %w", err)
	}
	return nil
}

// CloseBus releases the SPI port. Playback must not be in flight.
func (d *SPIDAC) CloseBus() error {
	d.enabled = false
	return d.port.Close()
}
