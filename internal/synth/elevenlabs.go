package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cheervox-labs/cheervox/internal/config"
)

type elevenLabsProvider struct {
	cfg    config.SynthesisConfig
	client *http.Client
}

type elVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type elRequest struct {
	Text          string          `json:"text"`
	ModelID       string          `json:"model_id,omitempty"`
	VoiceSettings elVoiceSettings `json:"voice_settings"`
}

// NewElevenLabs returns a provider backed by the ElevenLabs HTTP API.
// Audio is requested as raw PCM so no lossy container sits between the
// provider and local processing.
func NewElevenLabs(cfg config.SynthesisConfig) Provider {
	return &elevenLabsProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *elevenLabsProvider) Synthesize(ctx context.Context, voiceID, text string) ([]byte, error) {
	payload := elRequest{
		Text:    text,
		ModelID: p.cfg.ModelID,
		VoiceSettings: elVoiceSettings{
			Stability:       p.cfg.Stability,
			SimilarityBoost: p.cfg.SimilarityBoost,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal synthesis request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s?output_format=pcm_%d", p.cfg.BaseURL, voiceID, p.cfg.SampleRate)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build synthesis request: %w", err)
	}
	req.Header.Set("xi-api-key", p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/*")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("synthesis returned %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read synthesis response: %w", err)
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("synthesis returned empty audio")
	}
	return pcm, nil
}
