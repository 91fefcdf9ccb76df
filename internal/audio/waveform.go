package audio

import "math"

// tableSize is the number of samples in one waveform period. 1024 entries
// keeps table-walk quantization inaudible without interpolation.
const tableSize = 1024

// WaveformTable is a read-only lookup table over one waveform period,
// immutable after construction.
type WaveformTable struct {
	values [tableSize]uint16
}

// NewSineTable builds one sine period spanning the output range
// [0, fullScale], centered at mid-scale.
func NewSineTable(fullScale uint16) *WaveformTable {
	t := &WaveformTable{}
	mid := float64(fullScale) / 2.0
	for i := range t.values {
		phase := 2.0 * math.Pi * float64(i) / tableSize
		t.values[i] = uint16(math.Round(mid + mid*math.Sin(phase)))
	}
	return t
}

// At returns the table value at index i; i must be in [0, Size()).
func (t *WaveformTable) At(i int) uint16 {
	return t.values[i]
}

// Size returns the period length in samples.
func (t *WaveformTable) Size() int {
	return tableSize
}
