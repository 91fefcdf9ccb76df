package clock

import "time"

// Mock is a manually advanced Source for tests. Sleeps advance the mock
// time instead of blocking, so timed code paths run instantly and
// deterministically.
type Mock struct {
	now    time.Duration
	Sleeps []time.Duration
}

// NewMock creates a mock source starting at zero.
func NewMock() *Mock {
	return &Mock{}
}

// Advance moves the mock time forward.
func (m *Mock) Advance(d time.Duration) {
	m.now += d
}

func (m *Mock) Millis() uint32 {
	return uint32(m.now / time.Millisecond)
}

func (m *Mock) Micros() uint32 {
	return m.Millis() * 1000
}

func (m *Mock) Now() time.Duration {
	return m.now
}

func (m *Mock) Sleep(d time.Duration) {
	if d < 0 {
		return
	}
	m.now += d
	m.Sleeps = append(m.Sleeps, d)
}

func (m *Mock) SleepMs(n int) {
	m.Sleep(time.Duration(n) * time.Millisecond)
}
