// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"log"
	"sync/atomic"

	"github.com/relabs-tech/airdrum/internal/audio"
	"github.com/relabs-tech/airdrum/internal/events"
	"github.com/relabs-tech/airdrum/internal/samplebank"
)

// toneVoice is the synthesized fallback for a drum voice with no sample clip.
var toneVoice = map[events.Sound]struct {
	freq float64
	ms   int
}{
	events.Snare:   {220.0, 120},
	events.HiHat:   {880.0, 60},
	events.Kick:    {80.0, 150},
	events.HighTom: {330.0, 150},
	events.MidTom:  {262.0, 150},
	events.Crash:   {740.0, 300},
	events.Ride:    {587.0, 250},
	events.LowTom:  {196.0, 180},
}

// Player decouples hit detection from playback: triggers go into a bounded
// queue and a single goroutine streams them to the audio engine. The sensor
// poll loop never blocks on the DAC; when the queue is full the trigger is
// dropped and counted.
type Player struct {
	engine   *audio.Engine
	bank     *samplebank.Bank
	toneRate int

	queue   chan events.Sound
	dropped atomic.Uint32
	done    chan struct{}
}

// NewPlayer builds a player over an engine and a sample bank. queueSize
// bounds the number of pending triggers.
func NewPlayer(engine *audio.Engine, bank *samplebank.Bank, toneRate, queueSize int) *Player {
	return &Player{
		engine:   engine,
		bank:     bank,
		toneRate: toneRate,
		queue:    make(chan events.Sound, queueSize),
		done:     make(chan struct{}),
	}
}

// Enqueue submits a trigger without blocking. Returns false if the queue was
// full and the trigger was dropped.
func (p *Player) Enqueue(sound events.Sound) bool {
	select {
	case p.queue <- sound:
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

// Dropped returns the number of triggers discarded because the queue was full.
func (p *Player) Dropped() uint32 {
	return p.dropped.Load()
}

// Run consumes the queue until Close. Intended to be run on its own
// goroutine; playback of one trigger runs to completion before the next is
// taken.
func (p *Player) Run() {
	for {
		select {
		case sound := <-p.queue:
			p.play(sound)
		case <-p.done:
			return
		}
	}
}

// Close stops Run after the in-flight playback finishes.
func (p *Player) Close() {
	close(p.done)
}

func (p *Player) play(sound events.Sound) {
	if p.bank != nil {
		if s, ok := p.bank.Get(sound); ok {
			p.engine.PlayPCM(s.Data, s.Rate)
			return
		}
	}
	tone, ok := toneVoice[sound]
	if !ok {
		log.Printf("player: no voice for %s, skipping", sound)
		return
	}
	p.engine.PlayTone(tone.freq, tone.ms, p.toneRate)
}

// PlayStartupTones plays a short ascending arpeggio so the operator can hear
// that the analog path is alive before any stick motion.
func PlayStartupTones(engine *audio.Engine, toneRate int) {
	for _, freq := range []float64{523.25, 659.25, 783.99} {
		engine.PlayTone(freq, 120, toneRate)
	}
}
