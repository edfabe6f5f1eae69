package synth

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cheervox-labs/cheervox/internal/audio"
	"github.com/cheervox-labs/cheervox/internal/cheer"
	"github.com/cheervox-labs/cheervox/internal/config"
	"github.com/cheervox-labs/cheervox/internal/parser"
	"github.com/cheervox-labs/cheervox/internal/quota"
	"github.com/cheervox-labs/cheervox/internal/voices"
)

// Orchestrator runs the per-prompt synthesis for one task: quota, alias
// resolution, the provider call, persistence, and per-voice tweaks. Any
// failure drops only the affected prompt; the remaining prompts of the
// task still run.
type Orchestrator struct {
	provider     Provider
	voices       voices.Table
	cfg          config.SynthesisConfig
	quotaCfg     config.QuotaConfig
	bitThreshold int
	logger       *slog.Logger
	clock        func() time.Time
}

func NewOrchestrator(provider Provider, table voices.Table, cfg config.SynthesisConfig, quotaCfg config.QuotaConfig, bitThreshold int, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		provider:     provider,
		voices:       table,
		cfg:          cfg,
		quotaCfg:     quotaCfg,
		bitThreshold: bitThreshold,
		logger:       log.With(slog.String("component", "synth")),
		clock:        time.Now,
	}
}

// ProcessPrompts synthesizes the prompts of one task in order, returning
// one result per prompt that survived the quota and produced audio.
func (o *Orchestrator) ProcessPrompts(ctx context.Context, task cheer.Task, prompts []parser.Prompt) []Result {
	if err := os.MkdirAll(o.cfg.SaveDir, 0o755); err != nil {
		o.logger.Error("failed to create save dir", slog.String("dir", o.cfg.SaveDir), slogError(err))
		return nil
	}

	var results []Result
	priorChars := 0
	for idx, prompt := range prompts {
		allowed := quota.Allow(prompt.Text, task.Bits, priorChars, task.Bypass,
			o.quotaCfg.BaseCap, o.bitThreshold, o.quotaCfg.ExtraCharsPerBit)
		priorChars += len([]rune(allowed))
		if allowed == "" {
			o.logger.Info("prompt dropped by quota",
				slog.String("task_id", task.ID), slog.Int("idx", idx), slog.String("voice", prompt.Voice))
			continue
		}

		voiceID, ok := o.voices.Resolve(prompt.Voice)
		if !ok {
			o.logger.Warn("unknown voice alias",
				slog.String("task_id", task.ID), slog.Int("idx", idx), slog.String("voice", prompt.Voice))
			continue
		}

		pcm, err := o.provider.Synthesize(ctx, voiceID, allowed)
		if err != nil {
			o.logger.Warn("synthesis failed",
				slog.String("task_id", task.ID), slog.Int("idx", idx), slog.String("voice", prompt.Voice), slogError(err))
			continue
		}

		seg, err := audio.FromPCM(pcm, o.cfg.SampleRate, 1)
		if err != nil {
			o.logger.Warn("synthesis returned undecodable audio",
				slog.String("task_id", task.ID), slog.Int("idx", idx), slogError(err))
			continue
		}

		now := o.clock()
		path := filepath.Join(o.cfg.SaveDir, promptFileName(now, task.ID, idx, prompt.Voice))
		if err := seg.WriteFile(path); err != nil {
			o.logger.Warn("failed to persist prompt audio",
				slog.String("task_id", task.ID), slog.Int("idx", idx), slog.String("path", path), slogError(err))
			continue
		}

		if mult, ok := o.cfg.SpeedTweaks[prompt.Voice]; ok {
			if err := audio.AdjustSpeed(path, mult); err != nil {
				o.logger.Warn("speed tweak failed, keeping original",
					slog.String("task_id", task.ID), slog.String("voice", prompt.Voice), slogError(err))
			}
		}

		results = append(results, Result{
			Prompt:        parser.Prompt{Voice: prompt.Voice, Text: allowed},
			Index:         idx,
			Path:          path,
			SynthesizedAt: now,
		})
	}
	return results
}

// ClipPath returns the destination for a task's combined clip.
func (o *Orchestrator) ClipPath(task cheer.Task) string {
	return filepath.Join(o.cfg.SaveDir, fmt.Sprintf("%s_%s.wav", stamp(o.clock()), task.ID))
}

// promptFileName encodes timestamp, task id, prompt index, and voice alias
// so paths never collide across runs.
func promptFileName(now time.Time, taskID string, idx int, voice string) string {
	return fmt.Sprintf("%s_%s_%d_%s.wav", stamp(now), taskID, idx, voice)
}

func stamp(now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("%s_%03d", now.Format("20060102_150405"), now.Nanosecond()/1e6)
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
