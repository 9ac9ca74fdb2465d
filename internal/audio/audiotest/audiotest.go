// Package audiotest writes WAVE fixtures for tests.
package audiotest

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"
)

// WriteWAV encodes 16-bit PCM samples (interleaved when channels > 1) to
// path on fs.
func WriteWAV(fs afero.Fs, path string, sampleRate, channels int, samples []int) error {
	f, err := fs.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           samples,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// WriteRIFX writes a big-endian WAVE container with n zero frames.
func WriteRIFX(fs afero.Fs, path string, sampleRate, channels, frames int) error {
	dataSize := frames * channels * 2
	b := make([]byte, 0, 44+dataSize)
	b = append(b, "RIFX"...)
	b = binary.BigEndian.AppendUint32(b, uint32(36+dataSize))
	b = append(b, "WAVEfmt "...)
	b = binary.BigEndian.AppendUint32(b, 16)
	b = binary.BigEndian.AppendUint16(b, 1)
	b = binary.BigEndian.AppendUint16(b, uint16(channels))
	b = binary.BigEndian.AppendUint32(b, uint32(sampleRate))
	b = binary.BigEndian.AppendUint32(b, uint32(sampleRate*channels*2))
	b = binary.BigEndian.AppendUint16(b, uint16(channels*2))
	b = binary.BigEndian.AppendUint16(b, 16)
	b = append(b, "data"...)
	b = binary.BigEndian.AppendUint32(b, uint32(dataSize))
	b = append(b, make([]byte, dataSize)...)
	return afero.WriteFile(fs, path, b, 0o644)
}

// Truncate drops the last n bytes of path.
func Truncate(fs afero.Fs, path string, n int) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return err
	}
	if n > len(data) {
		n = len(data)
	}
	return afero.WriteFile(fs, path, data[:len(data)-n], 0o644)
}

// Silence returns n zero samples.
func Silence(n int) []int {
	return make([]int, n)
}

// Tone returns n samples of a sine wave at freq Hz.
func Tone(n, sampleRate int, freq float64, amplitude int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = int(float64(amplitude) * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}

// PCM16 returns the little-endian byte encoding of samples.
func PCM16(samples []int) []byte {
	out := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		out = binary.LittleEndian.AppendUint16(out, uint16(int16(s)))
	}
	return out
}
