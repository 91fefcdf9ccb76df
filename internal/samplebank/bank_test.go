package samplebank

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/airdrum/internal/events"
)

func writeWAV(t *testing.T, path string, data []int, rate, bitDepth, channels int) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, rate, bitDepth, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
}

func TestLoadWAVMono16(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "clip.wav")
	writeWAV(t, path, []int{0, 1000, -1000, 32767}, 44100, 16, 1)

	s, err := LoadWAV(path)
	require.NoError(t, err)
	assert.Equal(t, 44100, s.Rate)
	assert.Equal(t, []int16{0, 1000, -1000, 32767}, s.Data)
}

func TestLoadWAVStereoKeepsFirstChannel(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "clip.wav")
	// Interleaved L/R: the right channel is discarded.
	writeWAV(t, path, []int{100, -1, 200, -2, 300, -3}, 22050, 16, 2)

	s, err := LoadWAV(path)
	require.NoError(t, err)
	assert.Equal(t, []int16{100, 200, 300}, s.Data)
}

func TestLoadWAVRescales8Bit(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "clip.wav")
	writeWAV(t, path, []int{1, 64}, 8000, 8, 1)

	s, err := LoadWAV(path)
	require.NoError(t, err)
	// 8-bit values are shifted into 16-bit range.
	assert.Equal(t, []int16{1 << 8, 64 << 8}, s.Data)
}

func TestLoadWAVRejectsZeroSampleRate(t *testing.T) {
	t.Parallel()

	// A header declaring rate 0 must be rejected here, not crash playback
	// downstream.
	path := filepath.Join(t.TempDir(), "clip.wav")
	writeWAV(t, path, []int{1, 2, 3}, 0, 16, 1)

	_, err := LoadWAV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sample rate")
}

func TestLoadWAVMalformed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "junk.wav")
	require.NoError(t, os.WriteFile(path, []byte("this is not a wav"), 0o644))

	_, err := LoadWAV(path)
	assert.Error(t, err)
}

func TestLoadMissingFilesAreSkipped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeWAV(t, filepath.Join(dir, "snare.wav"), []int{1, 2, 3}, 44100, 16, 1)

	b, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Len())

	s, ok := b.Get(events.Snare)
	require.True(t, ok)
	assert.Equal(t, []int16{1, 2, 3}, s.Data)

	_, ok = b.Get(events.Kick)
	assert.False(t, ok)
}

func TestLoadMalformedFileFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kick.wav"), []byte("junk"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestMidTomSharesHighTomClip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeWAV(t, filepath.Join(dir, "tom_high.wav"), []int{7, 8}, 44100, 16, 1)

	b, err := Load(dir)
	require.NoError(t, err)

	high, ok := b.Get(events.HighTom)
	require.True(t, ok)
	mid, ok := b.Get(events.MidTom)
	require.True(t, ok)
	assert.Equal(t, high.Data, mid.Data)
}
