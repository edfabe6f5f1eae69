package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Segment is an in-memory mono-or-stereo 16-bit PCM clip.
type Segment struct {
	Data       []int
	SampleRate int
	Channels   int
}

// FromPCM builds a segment from raw little-endian 16-bit PCM bytes.
func FromPCM(pcm []byte, sampleRate, channels int) (*Segment, error) {
	if len(pcm)%2 != 0 {
		return nil, errors.New("pcm payload not aligned")
	}
	if sampleRate <= 0 || channels <= 0 {
		return nil, errors.New("invalid pcm format")
	}
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return &Segment{Data: samples, SampleRate: sampleRate, Channels: channels}, nil
}

// Load reads a WAV file into a segment.
func Load(path string) (*Segment, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 || buf.Format.NumChannels <= 0 {
		return nil, errors.New("wav missing format")
	}
	return &Segment{
		Data:       buf.Data,
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
	}, nil
}

// Silence produces d worth of zero samples in the given format.
func Silence(d time.Duration, sampleRate, channels int) *Segment {
	frames := int(float64(sampleRate) * d.Seconds())
	return &Segment{
		Data:       make([]int, frames*channels),
		SampleRate: sampleRate,
		Channels:   channels,
	}
}

// Duration reports the playback length of the segment.
func (s *Segment) Duration() time.Duration {
	if s.SampleRate <= 0 || s.Channels <= 0 {
		return 0
	}
	frames := len(s.Data) / s.Channels
	return time.Duration(float64(frames) / float64(s.SampleRate) * float64(time.Second))
}

// Gain shifts loudness by db decibels, clipping at the 16-bit range.
func (s *Segment) Gain(db float64) {
	if db == 0 {
		return
	}
	scale := math.Pow(10, db/20)
	for i, sample := range s.Data {
		scaled := int(math.Round(float64(sample) * scale))
		if scaled > math.MaxInt16 {
			scaled = math.MaxInt16
		} else if scaled < math.MinInt16 {
			scaled = math.MinInt16
		}
		s.Data[i] = scaled
	}
}

// Resample converts the segment to rate using linear interpolation. Slowed
// prompt files carry a scaled sample rate, so neighbours in a combined clip
// can disagree; everything is brought to one rate before concatenation.
func (s *Segment) Resample(rate int) {
	if rate <= 0 || rate == s.SampleRate || len(s.Data) == 0 {
		s.SampleRate = rate
		return
	}
	srcFrames := len(s.Data) / s.Channels
	dstFrames := int(float64(srcFrames) * float64(rate) / float64(s.SampleRate))
	out := make([]int, dstFrames*s.Channels)
	for frame := 0; frame < dstFrames; frame++ {
		pos := float64(frame) * float64(srcFrames-1) / float64(max(dstFrames-1, 1))
		lo := int(pos)
		hi := lo + 1
		if hi >= srcFrames {
			hi = srcFrames - 1
		}
		frac := pos - float64(lo)
		for ch := 0; ch < s.Channels; ch++ {
			a := float64(s.Data[lo*s.Channels+ch])
			b := float64(s.Data[hi*s.Channels+ch])
			out[frame*s.Channels+ch] = int(math.Round(a + (b-a)*frac))
		}
	}
	s.Data = out
	s.SampleRate = rate
}

// Concat joins segments into one, resampling to the first segment's rate.
func Concat(segments ...*Segment) (*Segment, error) {
	if len(segments) == 0 {
		return nil, errors.New("no segments")
	}
	first := segments[0]
	out := &Segment{SampleRate: first.SampleRate, Channels: first.Channels}
	for _, seg := range segments {
		if seg.Channels != first.Channels {
			return nil, fmt.Errorf("channel mismatch: %d vs %d", seg.Channels, first.Channels)
		}
		if seg.SampleRate != first.SampleRate {
			seg.Resample(first.SampleRate)
		}
		out.Data = append(out.Data, seg.Data...)
	}
	return out, nil
}

// WriteFile encodes the segment as 16-bit PCM WAV.
func (s *Segment) WriteFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	defer file.Close()

	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: s.Channels, SampleRate: s.SampleRate},
		Data:           s.Data,
		SourceBitDepth: 16,
	}
	enc := wav.NewEncoder(file, s.SampleRate, 16, s.Channels, 1)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// FileDuration reads only enough of a WAV file to report its length.
func FileDuration(path string) (time.Duration, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open wav: %w", err)
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	d, err := dec.Duration()
	if err != nil {
		return 0, fmt.Errorf("wav duration: %w", err)
	}
	return d, nil
}

// AdjustSpeed rewrites a WAV file with its sample rate scaled by multiplier.
// A multiplier below 1.0 slows playback and deepens the voice without
// touching the samples themselves.
func AdjustSpeed(path string, multiplier float64) error {
	if multiplier == 1.0 {
		return nil
	}
	if multiplier <= 0 {
		return fmt.Errorf("invalid speed multiplier %v", multiplier)
	}
	seg, err := Load(path)
	if err != nil {
		return err
	}
	seg.SampleRate = int(float64(seg.SampleRate) * multiplier)
	if seg.SampleRate <= 0 {
		return fmt.Errorf("speed multiplier %v collapses sample rate", multiplier)
	}
	return seg.WriteFile(path)
}
