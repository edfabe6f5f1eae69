package audio

import (
	"errors"
	"time"

	"github.com/cheervox-labs/cheervox/internal/config"
)

// ErrNoPieces is returned when assembly is attempted with zero inputs. A
// task whose every prompt was filtered out yields no clip, not a crash.
var ErrNoPieces = errors.New("no audio pieces to assemble")

// Piece is one synthesized prompt file entering the combined clip.
type Piece struct {
	Path  string
	Voice string
}

// Assemble concatenates the per-prompt files into one clip at outPath,
// preserving prompt order. Every segment after the first is shifted by the
// configured gain offset; voices with a configured boost get it on top.
// A short silence separates adjacent segments. Returns the clip duration.
func Assemble(pieces []Piece, cfg config.AssemblyConfig, outPath string) (time.Duration, error) {
	if len(pieces) == 0 {
		return 0, ErrNoPieces
	}

	var segments []*Segment
	for i, piece := range pieces {
		seg, err := Load(piece.Path)
		if err != nil {
			return 0, err
		}
		if i > 0 {
			seg.Gain(cfg.GainOffsetDB)
		}
		if boost, ok := cfg.VoiceBoostDB[piece.Voice]; ok {
			seg.Gain(boost)
		}
		if i > 0 && cfg.SilenceMS > 0 {
			gap := Silence(time.Duration(cfg.SilenceMS)*time.Millisecond, seg.SampleRate, seg.Channels)
			segments = append(segments, gap)
		}
		segments = append(segments, seg)
	}

	clip, err := Concat(segments...)
	if err != nil {
		return 0, err
	}
	if err := clip.WriteFile(outPath); err != nil {
		return 0, err
	}
	return clip.Duration(), nil
}
