package worker

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cheervox-labs/cheervox/internal/audio"
	"github.com/cheervox-labs/cheervox/internal/auditlog"
	"github.com/cheervox-labs/cheervox/internal/cheer"
	"github.com/cheervox-labs/cheervox/internal/config"
	"github.com/cheervox-labs/cheervox/internal/parser"
	"github.com/cheervox-labs/cheervox/internal/playback"
	"github.com/cheervox-labs/cheervox/internal/protocol"
	"github.com/cheervox-labs/cheervox/internal/queue"
	"github.com/cheervox-labs/cheervox/internal/synth"
	"github.com/cheervox-labs/cheervox/internal/voices"
)

// Publisher emits lifecycle events. A nil bus client satisfies it; every
// publish is advisory.
type Publisher interface {
	PublishJSON(subject string, msg any)
}

// Worker drains the task queue one task at a time: parse, synthesize,
// assemble, play, record. A failing task never stops the loop.
type Worker struct {
	queue      *queue.Queue
	orch       *synth.Orchestrator
	controller *playback.Controller
	store      *auditlog.Store
	publisher  Publisher
	voices     voices.Table
	indicator  string
	assembly   config.AssemblyConfig
	logger     *slog.Logger
	clock      func() time.Time

	tasksProcessed metric.Int64Counter
	promptsDropped metric.Int64Counter
}

func New(q *queue.Queue, orch *synth.Orchestrator, ctrl *playback.Controller, store *auditlog.Store,
	pub Publisher, table voices.Table, filterCfg config.FilterConfig, assembly config.AssemblyConfig,
	log *slog.Logger) *Worker {

	w := &Worker{
		queue:      q,
		orch:       orch,
		controller: ctrl,
		store:      store,
		publisher:  pub,
		voices:     table,
		indicator:  filterCfg.Indicator,
		assembly:   assembly,
		logger:     log.With(slog.String("component", "worker")),
		clock:      time.Now,
	}

	meter := otel.Meter("github.com/cheervox-labs/cheervox/worker")
	var err error
	w.tasksProcessed, err = meter.Int64Counter("cheervox.tasks.processed",
		metric.WithDescription("Tasks drained from the queue, by outcome"))
	if err != nil {
		w.logger.Warn("failed to create task counter", slog.String("error", err.Error()))
	}
	w.promptsDropped, err = meter.Int64Counter("cheervox.prompts.dropped",
		metric.WithDescription("Parsed prompts that produced no audio"))
	if err != nil {
		w.logger.Warn("failed to create prompt counter", slog.String("error", err.Error()))
	}

	return w
}

// Run drains the queue until it is closed or ctx is cancelled. Closing the
// queue is how the runtime stops the worker; the current task finishes or
// is cancelled through ctx first.
func (w *Worker) Run(ctx context.Context) error {
	for {
		task, ok := w.queue.Pop()
		if !ok {
			w.logger.Info("task queue closed, worker stopping")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		outcome := w.process(ctx, task)
		w.count(ctx, w.tasksProcessed, 1, attribute.String("outcome", outcome))
	}
}

func (w *Worker) process(ctx context.Context, task cheer.Task) string {
	log := w.logger.With(slog.String("task_id", task.ID), slog.String("sender", task.Sender))
	log.Info("processing task", slog.Int("bits", task.Bits), slog.Int("queue_depth", w.queue.Len()))

	prompts := parser.Parse(task.Text, w.indicator, w.voices)
	if len(prompts) == 0 {
		log.Info("no prompts parsed from task")
		return w.finish(ctx, task, protocol.OutcomeEmpty, "", 0, 0)
	}

	results := w.orch.ProcessPrompts(ctx, task, prompts)
	w.count(ctx, w.promptsDropped, int64(len(prompts)-len(results)))
	for _, res := range results {
		w.appendPrompt(ctx, task, res)
	}
	if len(results) == 0 {
		log.Info("all prompts dropped", slog.Int("prompts", len(prompts)))
		return w.finish(ctx, task, protocol.OutcomeEmpty, "", 0, len(prompts))
	}

	pieces := make([]audio.Piece, 0, len(results))
	for _, res := range results {
		pieces = append(pieces, audio.Piece{Path: res.Path, Voice: res.Prompt.Voice})
	}

	clipPath := w.orch.ClipPath(task)
	duration, err := audio.Assemble(pieces, w.assembly, clipPath)
	if err != nil {
		log.Error("failed to assemble clip", slog.String("error", err.Error()))
		return w.finish(ctx, task, protocol.OutcomeFailed, "", 0, len(results))
	}

	state, err := w.controller.Play(ctx, clipPath, duration)
	outcome := protocol.OutcomePlayed
	switch {
	case state == playback.StateCancelled && ctx.Err() != nil:
		outcome = protocol.OutcomeCancelled
	case state == playback.StateCancelled:
		outcome = protocol.OutcomeSkipped
	case err != nil:
		log.Warn("playback error", slog.String("error", err.Error()))
		outcome = protocol.OutcomeFailed
	}

	log.Info("task done",
		slog.String("outcome", outcome),
		slog.String("clip", clipPath),
		slog.Duration("duration", duration))
	return w.finish(ctx, task, outcome, clipPath, duration, len(results))
}

// finish records the terminal state in the audit store and announces it on
// the bus. It returns the outcome so process stays a single expression at
// each exit.
func (w *Worker) finish(ctx context.Context, task cheer.Task, outcome, clipPath string, duration time.Duration, prompts int) string {
	if w.store != nil {
		if err := w.store.MarkOutcome(ctx, task.ID, outcome); err != nil {
			w.logger.Warn("failed to record outcome",
				slog.String("task_id", task.ID), slog.String("error", err.Error()))
		}
	}
	if w.publisher != nil {
		w.publisher.PublishJSON(protocol.SubjectTaskCompleted, protocol.TaskOutcome{
			TaskID:      task.ID,
			Sender:      task.Sender,
			Outcome:     outcome,
			Prompts:     prompts,
			ClipPath:    clipPath,
			DurationMS:  duration.Milliseconds(),
			CompletedAt: w.clock().UTC(),
		})
	}
	return outcome
}

func (w *Worker) appendPrompt(ctx context.Context, task cheer.Task, res synth.Result) {
	if w.store == nil {
		return
	}
	err := w.store.AppendPrompt(ctx, auditlog.PromptRecord{
		TaskID:    task.ID,
		Index:     res.Index,
		Voice:     res.Prompt.Voice,
		File:      res.Path,
		CreatedAt: res.SynthesizedAt,
	})
	if err != nil {
		w.logger.Warn("failed to record prompt",
			slog.String("task_id", task.ID), slog.String("error", err.Error()))
	}
}

func (w *Worker) count(ctx context.Context, c metric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.Add(ctx, n, metric.WithAttributes(attrs...))
}
