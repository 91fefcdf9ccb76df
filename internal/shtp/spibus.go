package shtp

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

// spiBus adapts a periph SPI port to the Bus primitive. The device clocks
// data in mode 3; chip select is driven separately by the transport, so the
// kernel's own CS line must be routed elsewhere or left unconnected.
type spiBus struct {
	port spi.PortCloser
	conn spi.Conn
	hz   physic.Frequency
	ok   bool
}

// NewSPIBus opens an SPI device (e.g. "/dev/spidev0.0") at the given clock
// rate and configures it for the sensor hub.
func NewSPIBus(dev string, hz int64) (Bus, error) {
	port, err := spireg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("shtp: SPI open (%s): %w", dev, err)
	}
	b := &spiBus{port: port, hz: physic.Frequency(hz) * physic.Hertz}
	if err := b.Reconfigure(); err != nil {
		port.Close()
		return nil, err
	}
	return b, nil
}

// Exchange performs one full-duplex byte transfer. A transfer error marks
// the controller unhealthy and yields the stall sentinel; the next Read
// attempts recovery.
func (b *spiBus) Exchange(tx byte) byte {
	w := [1]byte{tx}
	var r [1]byte
	if err := b.conn.Tx(w[:], r[:]); err != nil {
		b.ok = false
		return 0xFF
	}
	return r[0]
}

func (b *spiBus) Healthy() bool {
	return b.ok
}

// Reconfigure rewrites the whole controller configuration in one step and
// re-verifies it by establishing a fresh connection.
func (b *spiBus) Reconfigure() error {
	conn, err := b.port.Connect(b.hz, spi.Mode3, 8)
	if err != nil {
		b.ok = false
		return fmt.Errorf("shtp: SPI connect: %w", err)
	}
	b.conn = conn
	b.ok = true
	return nil
}
