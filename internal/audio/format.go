package audio

import (
	"fmt"
	"strings"

	"github.com/loqalabs/loqa-transcribe/internal/fault"
)

// Encoding is the WAVE format tag.
type Encoding uint16

const (
	EncodingPCM        Encoding = 1
	EncodingFloat      Encoding = 3
	EncodingExtensible Encoding = 0xFFFE
)

func (e Encoding) String() string {
	switch e {
	case EncodingPCM:
		return "pcm"
	case EncodingFloat:
		return "float"
	case EncodingExtensible:
		return "extensible"
	default:
		return fmt.Sprintf("format(0x%04x)", uint16(e))
	}
}

// ByteOrder of the samples in the data chunk.
type ByteOrder string

const (
	LittleEndian ByteOrder = "little-endian"
	BigEndian    ByteOrder = "big-endian"
)

// Format is the audio layout declared by a container header.
type Format struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	BitDepth   int
	ByteOrder  ByteOrder
}

// Required returns the layout the recognizer accepts: mono 16-bit
// little-endian linear PCM at sampleRate.
func Required(sampleRate int) Format {
	return Format{
		Encoding:   EncodingPCM,
		SampleRate: sampleRate,
		Channels:   1,
		BitDepth:   16,
		ByteOrder:  LittleEndian,
	}
}

// FrameSize is the byte length of one sample frame across all channels.
func (f Format) FrameSize() int {
	return f.Channels * ((f.BitDepth + 7) / 8)
}

func (f Format) String() string {
	return fmt.Sprintf("%s %dHz %dch %dbit %s", f.Encoding, f.SampleRate, f.Channels, f.BitDepth, f.ByteOrder)
}

// Validate reports every field of got that differs from want.
func Validate(got, want Format) error {
	var mismatches []string
	if got.Encoding != want.Encoding {
		mismatches = append(mismatches, fmt.Sprintf("encoding %s, want %s", got.Encoding, want.Encoding))
	}
	if got.Channels != want.Channels {
		mismatches = append(mismatches, fmt.Sprintf("channels %d, want %d", got.Channels, want.Channels))
	}
	if got.SampleRate != want.SampleRate {
		mismatches = append(mismatches, fmt.Sprintf("sample rate %d, want %d", got.SampleRate, want.SampleRate))
	}
	if got.BitDepth != want.BitDepth {
		mismatches = append(mismatches, fmt.Sprintf("bit depth %d, want %d", got.BitDepth, want.BitDepth))
	}
	if got.ByteOrder != want.ByteOrder {
		mismatches = append(mismatches, fmt.Sprintf("byte order %s, want %s", got.ByteOrder, want.ByteOrder))
	}
	if len(mismatches) == 0 {
		return nil
	}
	return fault.New(fault.UnsupportedFormat, "validate format", "", fmt.Errorf("%s", strings.Join(mismatches, "; ")))
}
