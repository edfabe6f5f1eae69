package worker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cheervox-labs/cheervox/internal/auditlog"
	"github.com/cheervox-labs/cheervox/internal/cheer"
	"github.com/cheervox-labs/cheervox/internal/config"
	"github.com/cheervox-labs/cheervox/internal/playback"
	"github.com/cheervox-labs/cheervox/internal/protocol"
	"github.com/cheervox-labs/cheervox/internal/queue"
	"github.com/cheervox-labs/cheervox/internal/synth"
	"github.com/cheervox-labs/cheervox/internal/voices"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// recordingPlayer notes each clip it is asked to play and returns at once.
type recordingPlayer struct {
	mu    sync.Mutex
	paths []string
}

func (p *recordingPlayer) Play(ctx context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = append(p.paths, path)
	return nil
}

func (p *recordingPlayer) played() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.paths...)
}

// capturePublisher collects every lifecycle event published by the worker.
type capturePublisher struct {
	mu     sync.Mutex
	events []protocol.TaskOutcome
}

func (p *capturePublisher) PublishJSON(subject string, msg any) {
	if subject != protocol.SubjectTaskCompleted {
		return
	}
	out, ok := msg.(protocol.TaskOutcome)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, out)
}

func (p *capturePublisher) outcomes() []protocol.TaskOutcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]protocol.TaskOutcome(nil), p.events...)
}

func newTestWorker(t *testing.T, player playback.Player) (*Worker, *queue.Queue, *capturePublisher) {
	t.Helper()

	synthCfg := config.SynthesisConfig{
		Provider:   "mock",
		SampleRate: 8000,
		SaveDir:    t.TempDir(),
	}
	quotaCfg := config.QuotaConfig{BaseCap: 200, ExtraCharsPerBit: 2}
	filterCfg := config.FilterConfig{BitThreshold: 100, Indicator: "11io"}
	assembly := config.AssemblyConfig{SilenceMS: 50}
	playCfg := config.PlaybackConfig{Command: "true", HardCapSeconds: 60, PollIntervalMS: 5}

	table := voices.NewTable(map[string]string{"dwight": "voice-d", "rachel": "voice-r"})
	orch := synth.NewOrchestrator(synth.NewMock(synthCfg.SampleRate), table, synthCfg, quotaCfg, filterCfg.BitThreshold, newLogger())
	ctrl := playback.NewController(player, playCfg, newLogger())

	store, err := auditlog.Open(context.Background(), config.AuditLogConfig{RetentionMode: "ephemeral"}, newLogger())
	if err != nil {
		t.Fatalf("open audit store: %v", err)
	}

	q := queue.New()
	pub := &capturePublisher{}
	w := New(q, orch, ctrl, store, pub, table, filterCfg, assembly, newLogger())
	return w, q, pub
}

func TestTasksRunInOrder(t *testing.T) {
	player := &recordingPlayer{}
	w, q, pub := newTestWorker(t, player)

	tasks := []cheer.Task{
		{ID: cheer.NewTaskID(), Text: "11io dwight: first clip", Bits: 100, Sender: "alice"},
		{ID: cheer.NewTaskID(), Text: "11io rachel: second clip", Bits: 150, Sender: "bob"},
		{ID: cheer.NewTaskID(), Text: "11io dwight: third clip", Bits: 100, Sender: "carol"},
	}
	for _, task := range tasks {
		q.Push(task)
	}
	q.Close()

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("worker run: %v", err)
	}

	played := player.played()
	if len(played) != len(tasks) {
		t.Fatalf("played %d clips, want %d", len(played), len(tasks))
	}
	outcomes := pub.outcomes()
	if len(outcomes) != len(tasks) {
		t.Fatalf("published %d outcomes, want %d", len(outcomes), len(tasks))
	}
	for i, out := range outcomes {
		if out.TaskID != tasks[i].ID {
			t.Fatalf("outcome %d is for task %s, want %s", i, out.TaskID, tasks[i].ID)
		}
		if out.Outcome != protocol.OutcomePlayed {
			t.Fatalf("outcome %d = %q, want played", i, out.Outcome)
		}
		if out.DurationMS <= 0 {
			t.Fatalf("outcome %d has no duration", i)
		}
	}
}

func TestEmptyTaskDoesNotStopWorker(t *testing.T) {
	player := &recordingPlayer{}
	w, q, pub := newTestWorker(t, player)

	q.Push(cheer.Task{ID: cheer.NewTaskID(), Text: "11io nobody: hello", Bits: 100, Sender: "alice"})
	q.Push(cheer.Task{ID: cheer.NewTaskID(), Text: "11io dwight: still here", Bits: 100, Sender: "bob"})
	q.Close()

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("worker run: %v", err)
	}

	if got := len(player.played()); got != 1 {
		t.Fatalf("played %d clips, want 1", got)
	}
	outcomes := pub.outcomes()
	if len(outcomes) != 2 {
		t.Fatalf("published %d outcomes, want 2", len(outcomes))
	}
	if outcomes[0].Outcome != protocol.OutcomeEmpty {
		t.Fatalf("first outcome = %q, want empty", outcomes[0].Outcome)
	}
	if outcomes[1].Outcome != protocol.OutcomePlayed {
		t.Fatalf("second outcome = %q, want played", outcomes[1].Outcome)
	}
}

func TestUnparseableTextReportsEmpty(t *testing.T) {
	player := &recordingPlayer{}
	w, q, pub := newTestWorker(t, player)

	q.Push(cheer.Task{ID: cheer.NewTaskID(), Text: "no indicator at all", Bits: 500, Sender: "alice"})
	q.Close()

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("worker run: %v", err)
	}
	if len(player.played()) != 0 {
		t.Fatalf("nothing should have played")
	}
	outcomes := pub.outcomes()
	if len(outcomes) != 1 || outcomes[0].Outcome != protocol.OutcomeEmpty {
		t.Fatalf("expected one empty outcome, got %+v", outcomes)
	}
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	player := &recordingPlayer{}
	w, q, _ := newTestWorker(t, player)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q.Push(cheer.Task{ID: cheer.NewTaskID(), Text: "11io dwight: late", Bits: 100, Sender: "alice"})

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected context error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop on cancelled context")
	}
}
