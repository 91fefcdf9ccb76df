// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package clock provides the monotonic time source shared by the transport
// and the audio engine. The millisecond counter mirrors a periodic hardware
// tick: a single writer increments it, readers take one atomic load.
package clock

import (
	"sync/atomic"
	"time"
)

// Source is a monotonic time source.
//
// Micros is derived from the millisecond tick (ms × 1000), so it is only
// millisecond-accurate. That granularity is deliberate; callers needing
// finer resolution use Now.
type Source interface {
	// Millis returns elapsed milliseconds since the source started.
	Millis() uint32
	// Micros returns Millis()*1000.
	Micros() uint32
	// Now returns elapsed time since the source started, at full resolution.
	Now() time.Duration
	// Sleep blocks for at least d.
	Sleep(d time.Duration)
	// SleepMs blocks for at least n milliseconds.
	SleepMs(n int)
}

type tickSource struct {
	start time.Time
	ms    atomic.Uint32
}

// New starts a tick-backed source. The 1ms ticker goroutine is the single
// writer of the millisecond counter; Millis readers only load it. The source
// lives for the life of the process, like the hardware tick it mirrors.
func New() Source {
	s := &tickSource{start: time.Now()}
	go s.run()
	return s
}

func (s *tickSource) run() {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		// Resync from the wall ticker rather than blindly incrementing, so
		// missed ticks under scheduler pressure do not accumulate.
		s.ms.Store(uint32(time.Since(s.start) / time.Millisecond))
	}
}

func (s *tickSource) Millis() uint32 {
	return s.ms.Load()
}

func (s *tickSource) Micros() uint32 {
	return s.Millis() * 1000
}

func (s *tickSource) Now() time.Duration {
	return time.Since(s.start)
}

func (s *tickSource) Sleep(d time.Duration) {
	time.Sleep(d)
}

func (s *tickSource) SleepMs(n int) {
	time.Sleep(time.Duration(n) * time.Millisecond)
}
