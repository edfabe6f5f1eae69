package synth

import (
	"context"
	"time"

	"github.com/cheervox-labs/cheervox/internal/parser"
)

// Provider converts text into raw little-endian 16-bit mono PCM at the
// configured sample rate.
type Provider interface {
	Synthesize(ctx context.Context, voiceID, text string) ([]byte, error)
}

// Result is one successfully synthesized prompt, persisted to disk.
type Result struct {
	Prompt        parser.Prompt
	Index         int
	Path          string
	SynthesizedAt time.Time
}
