// Package audio reads WAVE files as a lazy sequence of whole-frame PCM
// chunks. The container format is parsed and exposed before any sample data
// is read.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-audio/wav"
	"github.com/spf13/afero"

	"github.com/loqalabs/loqa-transcribe/internal/fault"
)

// DefaultChunkFrames is the number of sample frames per chunk.
const DefaultChunkFrames = 4000

// ErrTruncated is wrapped by the IO error returned when the data chunk ends
// before its declared size or on a partial frame.
var ErrTruncated = errors.New("audio data truncated")

// Opener opens WAVE files on a filesystem.
type Opener struct {
	fs          afero.Fs
	chunkFrames int
}

// NewOpener returns an Opener on fs. A nil fs means the OS filesystem.
func NewOpener(fs afero.Fs, chunkFrames int) *Opener {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if chunkFrames <= 0 {
		chunkFrames = DefaultChunkFrames
	}
	return &Opener{fs: fs, chunkFrames: chunkFrames}
}

// Source is an open WAVE file. It is forward-only and not safe for
// concurrent use.
type Source struct {
	path     string
	file     afero.File
	format   Format
	data     io.Reader
	dataSize int64
	read     int64
	chunk    int
	err      error
	closed   bool
}

// Open parses the container header of path. The returned Source owns the
// file until Close.
func (o *Opener) Open(path string) (*Source, error) {
	file, err := o.fs.Open(path)
	if err != nil {
		return nil, fault.New(fault.IO, "open audio", path, err)
	}
	src, err := o.parse(path, file)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return src, nil
}

func (o *Opener) parse(path string, file afero.File) (*Source, error) {
	var magic [4]byte
	if _, err := io.ReadFull(file, magic[:]); err != nil {
		return nil, fault.New(fault.UnsupportedFormat, "open audio", path, fmt.Errorf("not a wave file: %w", err))
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fault.New(fault.IO, "open audio", path, err)
	}

	switch string(magic[:]) {
	case "RIFX":
		format, err := readRIFXFormat(file)
		if err != nil {
			return nil, fault.New(fault.UnsupportedFormat, "open audio", path, err)
		}
		// sample data of a big-endian file is never read
		return &Source{
			path:   path,
			file:   file,
			format: format,
			err:    fault.New(fault.UnsupportedFormat, "read audio", path, errors.New("big-endian sample data")),
		}, nil
	case "RIFF":
	default:
		return nil, fault.New(fault.UnsupportedFormat, "open audio", path, errors.New("not a wave file"))
	}

	dec := wav.NewDecoder(file)
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return nil, fault.New(fault.UnsupportedFormat, "open audio", path, fmt.Errorf("wave header: %w", err))
	}
	if !dec.IsValidFile() {
		return nil, fault.New(fault.UnsupportedFormat, "open audio", path, errors.New("invalid wave header"))
	}
	format := Format{
		Encoding:   Encoding(dec.WavAudioFormat),
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
		ByteOrder:  LittleEndian,
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, fault.New(fault.IO, "open audio", path, fmt.Errorf("locate data chunk: %w", err))
	}
	if dec.PCMChunk == nil {
		return nil, fault.New(fault.IO, "open audio", path, errors.New("missing data chunk"))
	}

	frame := format.FrameSize()
	if frame <= 0 {
		return nil, fault.New(fault.UnsupportedFormat, "open audio", path, fmt.Errorf("invalid frame size for %s", format))
	}
	size := int64(dec.PCMChunk.Size)
	return &Source{
		path:     path,
		file:     file,
		format:   format,
		data:     io.LimitReader(dec.PCMChunk, size),
		dataSize: size,
		chunk:    o.chunkFrames * frame,
	}, nil
}

// Path returns the path the source was opened from.
func (s *Source) Path() string { return s.path }

// Format returns the layout declared by the header.
func (s *Source) Format() Format { return s.format }

// Duration is the declared length of the data chunk.
func (s *Source) Duration() time.Duration {
	bytesPerSec := int64(s.format.SampleRate * s.format.FrameSize())
	if bytesPerSec <= 0 {
		return 0
	}
	return time.Duration(s.dataSize * int64(time.Second) / bytesPerSec)
}

// Next returns the next chunk of whole frames in file order, io.EOF after
// the last one. Once Next has returned an error it keeps returning it.
func (s *Source) Next() ([]byte, error) {
	if s.closed {
		return nil, fault.New(fault.IO, "read audio", s.path, errors.New("source closed"))
	}
	if s.err != nil {
		return nil, s.err
	}

	buf := make([]byte, s.chunk)
	n, err := io.ReadFull(s.data, buf)
	s.read += int64(n)
	switch {
	case err == nil:
		return buf, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		frame := s.format.FrameSize()
		whole := n - n%frame
		if s.read < s.dataSize || n%frame != 0 {
			s.err = fault.New(fault.IO, "read audio", s.path,
				fmt.Errorf("%w: read %d of %d bytes", ErrTruncated, s.read, s.dataSize))
		} else {
			s.err = io.EOF
		}
		if whole > 0 {
			return buf[:whole], nil
		}
		return nil, s.err
	default:
		s.err = fault.New(fault.IO, "read audio", s.path, err)
		if whole := n - n%s.format.FrameSize(); whole > 0 {
			return buf[:whole], nil
		}
		return nil, s.err
	}
}

// Close releases the file. It is safe to call more than once.
func (s *Source) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.file.Close(); err != nil {
		return fault.New(fault.IO, "close audio", s.path, err)
	}
	return nil
}

// readRIFXFormat reads the fmt chunk of a big-endian RIFX container, which
// go-audio/wav does not parse.
func readRIFXFormat(r io.Reader) (Format, error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Format{}, fmt.Errorf("rifx header: %w", err)
	}
	if !bytes.Equal(header[8:12], []byte("WAVE")) {
		return Format{}, errors.New("rifx container is not WAVE")
	}
	for {
		var ch [8]byte
		if _, err := io.ReadFull(r, ch[:]); err != nil {
			return Format{}, fmt.Errorf("rifx fmt chunk: %w", err)
		}
		size := binary.BigEndian.Uint32(ch[4:])
		if string(ch[:4]) != "fmt " {
			if _, err := io.CopyN(io.Discard, r, int64(size+size%2)); err != nil {
				return Format{}, fmt.Errorf("rifx skip chunk: %w", err)
			}
			continue
		}
		if size < 16 {
			return Format{}, fmt.Errorf("rifx fmt chunk too short: %d", size)
		}
		var fmtChunk [16]byte
		if _, err := io.ReadFull(r, fmtChunk[:]); err != nil {
			return Format{}, fmt.Errorf("rifx fmt chunk: %w", err)
		}
		return Format{
			Encoding:   Encoding(binary.BigEndian.Uint16(fmtChunk[0:])),
			Channels:   int(binary.BigEndian.Uint16(fmtChunk[2:])),
			SampleRate: int(binary.BigEndian.Uint32(fmtChunk[4:])),
			BitDepth:   int(binary.BigEndian.Uint16(fmtChunk[14:])),
			ByteOrder:  BigEndian,
		}, nil
	}
}
