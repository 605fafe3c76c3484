package audioconv

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/pekim/opus"
)

// SampleRate is the rate every decoder resamples to.
const SampleRate = 16000

type Options struct {
	MaxSamples int
}

type Format int

const (
	FormatUnknown Format = iota
	FormatWAV
	FormatOgg
	FormatMP3
)

func (f Format) String() string {
	switch f {
	case FormatWAV:
		return "wav"
	case FormatOgg:
		return "ogg"
	case FormatMP3:
		return "mp3"
	default:
		return "unknown"
	}
}

var ErrUnsupported = errors.New("unsupported audio format")

// Sniff guesses the container from the leading bytes.
func Sniff(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		return FormatWAV
	case bytes.HasPrefix(data, []byte("OggS")):
		return FormatOgg
	case bytes.HasPrefix(data, []byte("ID3")):
		return FormatMP3
	case len(data) > 1 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3
	default:
		return FormatUnknown
	}
}

// DecodeToPCM16k decodes a clip held in memory to mono float32 samples at
// 16 kHz.
func DecodeToPCM16k(ctx context.Context, data []byte, opt Options) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty clip")
	}

	var (
		c   clip
		err error
	)
	switch Sniff(data) {
	case FormatWAV:
		c, err = decodeWAV(bytes.NewReader(data))
	case FormatMP3:
		c, err = decodeMP3(bytes.NewReader(data))
	case FormatOgg:
		// Ogg carries either codec; vorbis is tried first.
		var opusErr error
		if c, err = decodeVorbis(bytes.NewReader(data)); err != nil {
			if c, opusErr = decodeOpus(bytes.NewReader(data)); opusErr != nil {
				return nil, fmt.Errorf("ogg is neither vorbis (%v) nor opus: %w", err, opusErr)
			}
			err = nil
		}
	default:
		return nil, fmt.Errorf("%w (supported: wav/mp3/ogg-vorbis/ogg-opus)", ErrUnsupported)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := c.mono16k()
	if opt.MaxSamples > 0 && len(out) > opt.MaxSamples {
		out = out[:opt.MaxSamples]
	}
	return out, nil
}

func ConvertFileToPCM16k(ctx context.Context, path string, opt Options) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeToPCM16k(ctx, data, opt)
}

func decodeWAV(r io.ReadSeeker) (clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return clip{}, errors.New("invalid wav")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return clip{}, fmt.Errorf("read wav: %w", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return clip{}, errors.New("empty wav")
	}

	c := clip{
		samples:  fromInts(buf.Data, int(dec.BitDepth)),
		rate:     int(dec.SampleRate),
		channels: int(dec.NumChans),
	}
	if f := buf.Format; f != nil {
		c.rate = cmp.Or(f.SampleRate, c.rate)
		c.channels = cmp.Or(f.NumChannels, c.channels)
	}
	return c, nil
}

// go-mp3 always emits 16-bit little-endian interleaved stereo.
func decodeMP3(r io.Reader) (clip, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return clip{}, err
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return clip{}, fmt.Errorf("read mp3: %w", err)
	}
	return clip{samples: fromInt16LE(raw), rate: dec.SampleRate(), channels: 2}, nil
}

func decodeVorbis(r io.Reader) (clip, error) {
	samples, f, err := oggvorbis.ReadAll(r)
	if err != nil {
		return clip{}, err
	}
	if f == nil {
		return clip{}, errors.New("ogg/vorbis stream without format")
	}
	return clip{samples: samples, rate: f.SampleRate, channels: f.Channels}, nil
}

// Opus always decodes at 48 kHz.
func decodeOpus(rs io.ReadSeeker) (clip, error) {
	dec, err := opus.NewDecoder(rs)
	if err != nil {
		return clip{}, err
	}
	defer dec.Destroy()

	ch := max(dec.ChannelCount(), 1)
	frame := make([]int16, 5760*ch) // 120ms at 48 kHz, the largest opus frame
	var samples []float32
	for {
		n, err := dec.Read(frame)
		samples = append(samples, fromInt16(frame[:n*ch])...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return clip{}, fmt.Errorf("read opus: %w", err)
		}
	}
	if len(samples) == 0 {
		return clip{}, errors.New("empty opus stream")
	}
	return clip{samples: samples, rate: 48000, channels: ch}, nil
}
