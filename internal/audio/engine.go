// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package audio streams synthesized or pre-recorded PCM samples to the
// analog output with sample-accurate pacing.
//
// Pacing is deadline-based: each sample's deadline is derived from the
// monotonic clock and the sample rate, so cadence does not depend on any
// assumed CPU frequency. A playback call runs to completion; concurrency
// between playback and sensor servicing is the player queue's job, one
// level up.
package audio

import (
	"time"

	"github.com/relabs-tech/airdrum/internal/clock"
)

// enableSettleMs is how long the converter gets to stabilize after being
// re-enabled mid-stream.
const enableSettleMs = 2

// envelopeMinSamples is the note length below which no envelope is applied,
// preserving the waveform shape of very short notes.
const envelopeMinSamples = 100

// Engine renders audio to one Output. Not safe for concurrent use: the
// output register is exclusively owned by the engine for the duration of a
// playback call.
type Engine struct {
	out       Output
	clk       clock.Source
	table     *WaveformTable
	fullScale uint16
	mid       uint16
}

// New builds an engine for a converter of the given resolution. bits is a
// configuration parameter, not a constant: fullScale is (1<<bits)-1 and
// mid-scale (silence) is half of the range.
func New(out Output, clk clock.Source, bits int) *Engine {
	fullScale := uint16(1)<<bits - 1
	return &Engine{
		out:       out,
		clk:       clk,
		table:     NewSineTable(fullScale),
		fullScale: fullScale,
		mid:       uint16(1) << (bits - 1),
	}
}

// FullScale returns the maximum output level.
func (e *Engine) FullScale() uint16 {
	return e.fullScale
}

// MidScale returns the silence level.
func (e *Engine) MidScale() uint16 {
	return e.mid
}

// SetOutput clamps value into [0, fullScale] and latches it. If the output
// channel is found disabled it is re-enabled first, with a short settle
// delay before the write.
func (e *Engine) SetOutput(value uint16) {
	if value > e.fullScale {
		value = e.fullScale
	}
	if !e.out.Enabled() {
		e.out.Enable()
		e.clk.SleepMs(enableSettleMs)
	}
	e.out.Write(value)
}

// PlayTone synthesizes freq Hz for durationMs from the sine table, walking
// it without interpolation. freq 0 is a rest: the output holds mid-scale
// for the duration. Longer notes get a linear attack and symmetric decay
// (up to 1ms each) to avoid clicks at the note boundaries; the output
// always ends at mid-scale.
func (e *Engine) PlayTone(freq float64, durationMs, sampleRate int) {
	if sampleRate <= 0 {
		// A non-positive rate has no defined cadence; refuse rather than
		// divide by it.
		return
	}
	if freq == 0 {
		e.SetOutput(e.mid)
		e.clk.SleepMs(durationMs)
		return
	}

	n := sampleRate * durationMs / 1000
	phaseInc := freq * float64(e.table.Size()) / float64(sampleRate)

	// Attack/decay window: 1ms worth of samples, capped at a quarter of the
	// note so short notes keep some sustain.
	ramp := sampleRate / 1000
	if ramp > n/4 {
		ramp = n / 4
	}
	if ramp == 0 {
		ramp = 1
	}

	period := time.Second / time.Duration(sampleRate)
	next := e.clk.Now()
	phase := 0.0

	for i := 0; i < n; i++ {
		for phase >= float64(e.table.Size()) {
			phase -= float64(e.table.Size())
		}
		for phase < 0 {
			phase += float64(e.table.Size())
		}
		value := e.table.At(int(phase) % e.table.Size())

		if n > envelopeMinSamples && i < ramp {
			// Attack: fade in from mid-scale.
			amplitude := int32(value) - int32(e.mid)
			value = uint16(int32(e.mid) + amplitude*int32(i)/int32(ramp))
		} else if n > envelopeMinSamples && i >= n-ramp {
			// Decay: fade out to mid-scale.
			fadePos := i - (n - ramp)
			amplitude := int32(value) - int32(e.mid)
			value = uint16(int32(e.mid) + amplitude*int32(ramp-fadePos)/int32(ramp))
		}

		e.SetOutput(value)
		phase += phaseInc

		next += period
		if d := next - e.clk.Now(); d > 0 {
			e.clk.Sleep(d)
		}
	}

	e.SetOutput(e.mid)
}

// PlayPCM streams signed 16-bit samples at sampleRate. The buffer is
// externally owned and only referenced for the duration of the call. An
// empty buffer or a non-positive rate is a no-op. Each sample is rescaled
// into the converter's native range by arithmetic shift, centered at
// mid-scale, and clamped; the output ends at mid-scale.
func (e *Engine) PlayPCM(samples []int16, sampleRate int) {
	if len(samples) == 0 || sampleRate <= 0 {
		return
	}

	shift := 16 - bitsOf(e.fullScale)
	period := time.Second / time.Duration(sampleRate)
	next := e.clk.Now()

	for _, s := range samples {
		value := int32(e.mid) + int32(s>>shift)
		if value < 0 {
			value = 0
		}
		if value > int32(e.fullScale) {
			value = int32(e.fullScale)
		}
		e.SetOutput(uint16(value))

		next += period
		if d := next - e.clk.Now(); d > 0 {
			e.clk.Sleep(d)
		}
	}

	e.SetOutput(e.mid)
}

// bitsOf recovers the resolution from a full-scale value of all ones.
func bitsOf(fullScale uint16) int {
	bits := 0
	for v := uint32(fullScale); v != 0; v >>= 1 {
		bits++
	}
	return bits
}
