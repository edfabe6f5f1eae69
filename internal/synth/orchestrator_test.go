package synth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/cheervox-labs/cheervox/internal/audio"
	"github.com/cheervox-labs/cheervox/internal/cheer"
	"github.com/cheervox-labs/cheervox/internal/config"
	"github.com/cheervox-labs/cheervox/internal/parser"
	"github.com/cheervox-labs/cheervox/internal/voices"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testTable() voices.Table {
	return voices.NewTable(map[string]string{"dwight": "voice-a", "rachel": "voice-b"})
}

func testSynthCfg(t *testing.T) config.SynthesisConfig {
	t.Helper()
	return config.SynthesisConfig{
		SampleRate:  22050,
		SaveDir:     t.TempDir(),
		SpeedTweaks: map[string]float64{"dwight": 0.95},
	}
}

func testQuotaCfg() config.QuotaConfig {
	return config.QuotaConfig{BaseCap: 200, ExtraCharsPerBit: 2}
}

type flakyProvider struct {
	inner    Provider
	failFor  string
	requests []string
}

func (f *flakyProvider) Synthesize(ctx context.Context, voiceID, text string) ([]byte, error) {
	f.requests = append(f.requests, text)
	if voiceID == f.failFor {
		return nil, errors.New("provider unavailable")
	}
	return f.inner.Synthesize(ctx, voiceID, text)
}

func TestProcessPromptsPreservesOrder(t *testing.T) {
	o := NewOrchestrator(NewMock(22050), testTable(), testSynthCfg(t), testQuotaCfg(), 100, newLogger())
	task := cheer.Task{ID: "task-1", Bits: 150}
	prompts := []parser.Prompt{
		{Voice: "dwight", Text: "hello there"},
		{Voice: "rachel", Text: "and goodbye"},
	}

	results := o.ProcessPrompts(context.Background(), task, prompts)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Prompt.Voice != "dwight" || results[1].Prompt.Voice != "rachel" {
		t.Fatalf("order not preserved: %+v", results)
	}
	if results[0].Index != 0 || results[1].Index != 1 {
		t.Fatalf("indices wrong: %+v", results)
	}
	for _, r := range results {
		if !strings.Contains(r.Path, task.ID) || !strings.Contains(r.Path, r.Prompt.Voice) {
			t.Fatalf("file name must encode task id and voice: %s", r.Path)
		}
		if _, err := audio.Load(r.Path); err != nil {
			t.Fatalf("persisted audio unreadable: %v", err)
		}
	}
}

func TestUnknownAliasSkipsPromptOnly(t *testing.T) {
	o := NewOrchestrator(NewMock(22050), testTable(), testSynthCfg(t), testQuotaCfg(), 100, newLogger())
	task := cheer.Task{ID: "task-2", Bits: 150}
	prompts := []parser.Prompt{
		{Voice: "ghost", Text: "should be skipped"},
		{Voice: "rachel", Text: "still spoken"},
	}

	results := o.ProcessPrompts(context.Background(), task, prompts)
	if len(results) != 1 || results[0].Prompt.Voice != "rachel" {
		t.Fatalf("expected only rachel to survive, got %+v", results)
	}
	// the unknown prompt was known to the parser's alias set in this scenario,
	// so it still consumed quota before being skipped
	if results[0].Index != 1 {
		t.Fatalf("surviving prompt should keep its original index, got %d", results[0].Index)
	}
}

func TestProviderFailureDropsPromptOnly(t *testing.T) {
	flaky := &flakyProvider{inner: NewMock(22050), failFor: "voice-a"}
	o := NewOrchestrator(flaky, testTable(), testSynthCfg(t), testQuotaCfg(), 100, newLogger())
	task := cheer.Task{ID: "task-3", Bits: 150}
	prompts := []parser.Prompt{
		{Voice: "dwight", Text: "this call fails"},
		{Voice: "rachel", Text: "this one works"},
	}

	results := o.ProcessPrompts(context.Background(), task, prompts)
	if len(results) != 1 || results[0].Prompt.Voice != "rachel" {
		t.Fatalf("expected rachel only, got %+v", results)
	}
	if len(flaky.requests) != 2 {
		t.Fatalf("both prompts should reach the provider, got %d calls", len(flaky.requests))
	}
}

func TestQuotaAccumulatesAcrossPrompts(t *testing.T) {
	flaky := &flakyProvider{inner: NewMock(22050)}
	o := NewOrchestrator(flaky, testTable(), testSynthCfg(t), config.QuotaConfig{BaseCap: 10, ExtraCharsPerBit: 0}, 100, newLogger())
	task := cheer.Task{ID: "task-4", Bits: 100}
	prompts := []parser.Prompt{
		{Voice: "dwight", Text: "12345678"},   // consumes 8 of 10
		{Voice: "rachel", Text: "abcdefgh"},   // only 2 remain
		{Voice: "dwight", Text: "never runs"}, // budget exhausted
	}

	results := o.ProcessPrompts(context.Background(), task, prompts)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[1].Prompt.Text != "ab" {
		t.Fatalf("expected truncated second prompt, got %q", results[1].Prompt.Text)
	}
	if len(flaky.requests) != 2 {
		t.Fatalf("exhausted prompt must not reach the provider, got %d calls", len(flaky.requests))
	}
}

func TestBypassSkipsQuota(t *testing.T) {
	long := strings.Repeat("x", 5000)
	o := NewOrchestrator(NewMock(22050), testTable(), testSynthCfg(t), config.QuotaConfig{BaseCap: 10}, 100, newLogger())
	task := cheer.Task{ID: "task-5", Bits: 1, Bypass: true}

	results := o.ProcessPrompts(context.Background(), task, []parser.Prompt{{Voice: "dwight", Text: long}})
	if len(results) != 1 || results[0].Prompt.Text != long {
		t.Fatalf("bypass must pass text through unmodified")
	}
}

func TestSpeedTweakApplied(t *testing.T) {
	cfg := testSynthCfg(t)
	o := NewOrchestrator(NewMock(22050), testTable(), cfg, testQuotaCfg(), 100, newLogger())
	task := cheer.Task{ID: "task-6", Bits: 150}

	results := o.ProcessPrompts(context.Background(), task, []parser.Prompt{
		{Voice: "dwight", Text: "same words here"},
		{Voice: "rachel", Text: "same words here"},
	})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	slowed, err := audio.Load(results[0].Path)
	if err != nil {
		t.Fatalf("load dwight: %v", err)
	}
	normal, err := audio.Load(results[1].Path)
	if err != nil {
		t.Fatalf("load rachel: %v", err)
	}
	if slowed.SampleRate >= normal.SampleRate {
		t.Fatalf("dwight should carry a reduced sample rate: %d vs %d", slowed.SampleRate, normal.SampleRate)
	}
	if slowed.Duration() <= normal.Duration() {
		t.Fatalf("slowed prompt should play longer: %v vs %v", slowed.Duration(), normal.Duration())
	}
}

func TestClipPathUsesTaskID(t *testing.T) {
	o := NewOrchestrator(NewMock(22050), testTable(), testSynthCfg(t), testQuotaCfg(), 100, newLogger())
	o.clock = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	path := o.ClipPath(cheer.Task{ID: "abc-123"})
	if !strings.Contains(path, "abc-123") || !strings.HasSuffix(path, ".wav") {
		t.Fatalf("unexpected clip path %s", path)
	}
}
