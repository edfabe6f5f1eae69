package synth

import (
	"context"
	"encoding/binary"
	"math"
)

type mockProvider struct {
	sampleRate int
}

// NewMock returns a provider that produces a short tone whose length grows
// with the text. Useful for local runs without an API key and for tests.
func NewMock(sampleRate int) Provider {
	return &mockProvider{sampleRate: sampleRate}
}

func (m *mockProvider) Synthesize(ctx context.Context, voiceID, text string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ms := 100 + 20*len([]rune(text))
	if ms > 2000 {
		ms = 2000
	}
	frames := m.sampleRate * ms / 1000
	pcm := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		sample := int16(6000 * math.Sin(2*math.Pi*330*float64(i)/float64(m.sampleRate)))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(sample))
	}
	return pcm, nil
}
