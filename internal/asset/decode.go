package asset

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-audio/wav"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
)

// ResampleQuality is passed to beep.Resample when converting assets to the
// engine rate.
const ResampleQuality = 4

var (
	ErrEmpty             = errors.New("no audio data")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// Decoder turns encoded bytes into an Asset at TargetRate. A zero
// TargetRate keeps the source rate.
type Decoder struct {
	TargetRate int
}

// Decode sniffs the container and decodes it. Failures are always
// *DecodeError.
func (d *Decoder) Decode(source string, data []byte) (*Asset, error) {
	a, err := d.decode(source, data)
	if err != nil {
		return nil, &DecodeError{Source: source, Err: err}
	}
	return a, nil
}

func (d *Decoder) decode(source string, data []byte) (*Asset, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	var (
		frames   [][2]float64
		rate     int
		channels int
		err      error
	)
	switch Sniff(data) {
	case FormatWAV:
		frames, rate, channels, err = decodeWAV(data)
	case FormatMP3:
		frames, rate, channels, err = decodeMP3(data)
	default:
		return nil, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, ErrEmpty
	}

	a := New(source, frames, rate, channels)
	if d.TargetRate > 0 && d.TargetRate != rate {
		resampled, err := resample(frames, rate, d.TargetRate)
		if err != nil {
			return nil, fmt.Errorf("resample %d -> %d: %w", rate, d.TargetRate, err)
		}
		a.frames = resampled
		a.sampleRate = d.TargetRate
	}

	slog.Debug("Decoded asset",
		"source", source,
		"source_rate", a.sourceRate,
		"sample_rate", a.sampleRate,
		"channels", channels,
		"seconds", a.Seconds())
	return a, nil
}

// Format identifies a container by its leading bytes.
type Format string

const (
	FormatUnknown Format = "unknown"
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
)

func Sniff(data []byte) Format {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV
	case len(data) >= 3 && bytes.Equal(data[0:3], []byte("ID3")):
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3
	}
	return FormatUnknown
}

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

func decodeWAV(data []byte) ([][2]float64, int, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, 0, 0, errors.New("invalid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("read PCM: %w", err)
	}
	if dec.WavAudioFormat != wavFormatPCM && dec.WavAudioFormat != wavFormatExtensible {
		return nil, 0, 0, fmt.Errorf("%w: WAV format tag %d", ErrUnsupportedFormat, dec.WavAudioFormat)
	}

	channels := int(dec.NumChans)
	depth := int(dec.BitDepth)
	if channels < 1 || depth < 8 || depth > 32 {
		return nil, 0, 0, fmt.Errorf("%w: %d channels at %d bit", ErrUnsupportedFormat, channels, depth)
	}

	scale := float64(int64(1) << (depth - 1))
	offset := 0
	if depth == 8 {
		// 8 bit PCM is unsigned
		offset = 128
	}

	n := len(buf.Data) / channels
	frames := make([][2]float64, n)
	for i := 0; i < n; i++ {
		l := float64(buf.Data[i*channels]-offset) / scale
		r := l
		if channels > 1 {
			r = float64(buf.Data[i*channels+1]-offset) / scale
		}
		frames[i] = [2]float64{l, r}
	}
	return frames, int(dec.SampleRate), channels, nil
}

func decodeMP3(data []byte) ([][2]float64, int, int, error) {
	streamer, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	if err != nil {
		return nil, 0, 0, err
	}
	defer streamer.Close()

	frames, err := drain(streamer)
	if err != nil {
		return nil, 0, 0, err
	}
	return frames, int(format.SampleRate), format.NumChannels, nil
}

func resample(frames [][2]float64, from, to int) ([][2]float64, error) {
	if from <= 0 || to <= 0 {
		return nil, errors.New("invalid sample rate")
	}
	r := beep.Resample(ResampleQuality, beep.SampleRate(from), beep.SampleRate(to), &frameStreamer{frames: frames})
	return drain(r)
}

// drain reads a streamer to the end.
func drain(s beep.Streamer) ([][2]float64, error) {
	var out [][2]float64
	buf := make([][2]float64, 4096)
	for {
		n, ok := s.Stream(buf)
		out = append(out, buf[:n]...)
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// frameStreamer plays a frame slice once.
type frameStreamer struct {
	frames [][2]float64
	pos    int
}

func (f *frameStreamer) Stream(samples [][2]float64) (int, bool) {
	if f.pos >= len(f.frames) {
		return 0, false
	}
	n := copy(samples, f.frames[f.pos:])
	f.pos += n
	return n, true
}

func (f *frameStreamer) Err() error {
	return nil
}
