// Package samplebank owns the per-drum PCM sample sets, loaded once from
// WAV files at startup. Clips live on disk next to the config file.
package samplebank

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-audio/wav"

	"github.com/relabs-tech/airdrum/internal/events"
)

// Sample is one playable PCM clip.
type Sample struct {
	Data []int16
	Rate int
}

// Expected file name per drum voice. The mid tom reuses the high tom clip.
var soundFiles = map[events.Sound]string{
	events.Snare:   "snare.wav",
	events.HiHat:   "hihat_closed.wav",
	events.Kick:    "kick.wav",
	events.HighTom: "tom_high.wav",
	events.MidTom:  "tom_high.wav",
	events.Crash:   "crash.wav",
	events.Ride:    "ride.wav",
	events.LowTom:  "tom_low.wav",
}

// Bank maps drum voices to clips.
type Bank struct {
	samples map[events.Sound]Sample
}

// Load reads every known drum clip from dir. Missing files are logged and
// skipped — the player falls back to a synthesized tone for those voices —
// but an unreadable or malformed file is an error.
func Load(dir string) (*Bank, error) {
	b := &Bank{samples: make(map[events.Sound]Sample)}
	for sound, name := range soundFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			log.Printf("samplebank: %s missing, %s will use tone fallback", name, sound)
			continue
		}
		sample, err := LoadWAV(path)
		if err != nil {
			return nil, fmt.Errorf("samplebank: %s: %w", name, err)
		}
		b.samples[sound] = sample
	}
	log.Printf("samplebank: loaded %d clips from %s", len(b.samples), dir)
	return b, nil
}

// Get returns the clip for a drum voice, if one was loaded.
func (b *Bank) Get(sound events.Sound) (Sample, bool) {
	s, ok := b.samples[sound]
	return s, ok
}

// Len returns the number of loaded clips.
func (b *Bank) Len() int {
	return len(b.samples)
}

// LoadWAV decodes one WAV file into signed 16-bit mono PCM. Multi-channel
// files are reduced to their first channel; other bit depths are shifted
// into 16-bit range.
func LoadWAV(path string) (Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return Sample{}, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Sample{}, fmt.Errorf("decode: %w", err)
	}
	if buf.Format == nil || len(buf.Data) == 0 {
		return Sample{}, fmt.Errorf("no PCM data")
	}
	if buf.Format.SampleRate <= 0 {
		return Sample{}, fmt.Errorf("invalid sample rate %d", buf.Format.SampleRate)
	}

	depth := buf.SourceBitDepth
	if depth == 0 {
		depth = 16
	}
	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}

	data := make([]int16, 0, len(buf.Data)/channels)
	for i := 0; i < len(buf.Data); i += channels {
		v := buf.Data[i]
		switch {
		case depth > 16:
			v >>= uint(depth - 16)
		case depth < 16:
			v <<= uint(16 - depth)
		}
		data = append(data, int16(v))
	}

	return Sample{Data: data, Rate: buf.Format.SampleRate}, nil
}
