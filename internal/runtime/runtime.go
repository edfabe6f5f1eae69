package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cheervox-labs/cheervox/internal/auditlog"
	"github.com/cheervox-labs/cheervox/internal/bus"
	"github.com/cheervox-labs/cheervox/internal/cheer"
	"github.com/cheervox-labs/cheervox/internal/config"
	"github.com/cheervox-labs/cheervox/internal/filter"
	"github.com/cheervox-labs/cheervox/internal/ingest"
	"github.com/cheervox-labs/cheervox/internal/natsserver"
	"github.com/cheervox-labs/cheervox/internal/playback"
	"github.com/cheervox-labs/cheervox/internal/protocol"
	"github.com/cheervox-labs/cheervox/internal/queue"
	"github.com/cheervox-labs/cheervox/internal/synth"
	"github.com/cheervox-labs/cheervox/internal/voices"
	"github.com/cheervox-labs/cheervox/internal/worker"
)

// Runtime owns every long-lived component of the pipeline and runs them to
// a coordinated shutdown: ingest feeds the queue, the worker drains it,
// the HTTP surface exposes health, metrics, and the skip control.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error

	busClient  *bus.Client
	embedded   *natsserver.EmbeddedServer
	store      *auditlog.Store
	blacklist  *filter.Blacklist
	taskQueue  *queue.Queue
	controller *playback.Controller

	ready atomic.Bool
	wg    sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings the pipeline up and blocks until ctx is cancelled, then
// tears everything down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	if r.cfg.Bus.Enabled {
		embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("start embedded bus: %w", err)
		}
		r.embedded = embedded

		busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
		if err != nil {
			r.embedded.Shutdown()
			return fmt.Errorf("connect to bus: %w", err)
		}
		r.busClient = busClient
	}

	store, err := auditlog.Open(ctx, r.cfg.AuditLog, r.logger)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	r.store = store

	r.blacklist = filter.NewBlacklist(r.cfg.Filter.BlacklistPath)
	r.taskQueue = queue.New()

	table := voices.NewTable(r.cfg.Voices)

	var provider synth.Provider
	switch r.cfg.Synthesis.Provider {
	case "mock":
		provider = synth.NewMock(r.cfg.Synthesis.SampleRate)
	default:
		provider = synth.NewElevenLabs(r.cfg.Synthesis)
	}
	orch := synth.NewOrchestrator(provider, table, r.cfg.Synthesis, r.cfg.Quota, r.cfg.Filter.BitThreshold, r.logger)

	player, err := playback.NewExecPlayer(r.cfg.Playback.Command)
	if err != nil {
		return fmt.Errorf("configure player: %w", err)
	}
	r.controller = playback.NewController(player, r.cfg.Playback, r.logger)

	var publisher worker.Publisher
	if r.busClient != nil {
		publisher = r.busClient
		sub, err := r.busClient.Subscribe(protocol.SubjectPlaybackSkip, func([]byte) {
			r.controller.Skip()
		})
		if err != nil {
			r.logger.Warn("failed to subscribe to skip subject", slog.String("error", err.Error()))
		} else {
			defer sub.Drain()
		}
	}

	wrk := worker.New(r.taskQueue, orch, r.controller, r.store, publisher, table,
		r.cfg.Filter, r.cfg.Assembly, r.logger)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := wrk.Run(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("worker stopped", slog.String("error", err.Error()))
		}
	}()

	if r.cfg.Twitch.Enabled {
		source := ingest.NewSource(r.cfg.Twitch, r.handleEvent, r.logger)
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := source.Run(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("ingest stopped", slog.String("error", err.Error()))
			}
		}()
	} else {
		r.logger.Warn("twitch ingest disabled, queue only fed via bus or tests")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("/skip", r.handleSkip)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	// Unblock the worker; the cancelled ctx stops mid-playback.
	r.taskQueue.Close()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	r.busClient.Close()
	r.embedded.Shutdown()
	if err := r.store.Close(); err != nil {
		r.logger.Error("audit log close error", slog.String("error", err.Error()))
	}
	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// handleEvent is the admission path for every cheer coming off the
// EventSub socket. The blacklist is re-read per event so edits to the file
// apply without a restart.
func (r *Runtime) handleEvent(ev cheer.Event) {
	decision := filter.Decide(ev, r.cfg.Filter, r.blacklist)
	if !decision.Admit {
		r.logger.Info("cheer rejected",
			slog.String("sender", ev.Sender),
			slog.Int("bits", ev.Bits),
			slog.String("reason", decision.Reason))
		if r.busClient != nil {
			r.busClient.PublishJSON(protocol.SubjectTaskDropped, protocol.TaskOutcome{
				Sender:      ev.Sender,
				Outcome:     decision.Reason,
				CompletedAt: time.Now().UTC(),
			})
		}
		return
	}

	task := cheer.Task{
		ID:     cheer.NewTaskID(),
		Text:   ev.Message,
		Bits:   ev.Bits,
		Sender: ev.Sender,
		Bypass: filter.Bypass(ev.Sender, r.cfg.Filter),
	}

	if r.store != nil {
		err := r.store.AppendTask(context.Background(), auditlog.TaskRecord{
			TaskID:    task.ID,
			Sender:    task.Sender,
			Bits:      task.Bits,
			RawText:   task.Text,
			Reason:    decision.Reason,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			r.logger.Warn("failed to record admitted task",
				slog.String("task_id", task.ID), slog.String("error", err.Error()))
		}
	}

	r.taskQueue.Push(task)
	r.logger.Info("cheer admitted",
		slog.String("task_id", task.ID),
		slog.String("sender", task.Sender),
		slog.Int("bits", task.Bits),
		slog.Int("queue_depth", r.taskQueue.Len()))

	if r.busClient != nil {
		r.busClient.PublishJSON(protocol.SubjectTaskAdmitted, protocol.TaskAnnouncement{
			TaskID:     task.ID,
			Sender:     task.Sender,
			Bits:       task.Bits,
			Bypass:     task.Bypass,
			QueueDepth: r.taskQueue.Len(),
			AdmittedAt: time.Now().UTC(),
		})
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !r.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	if r.cfg.Bus.Enabled && !r.busClient.Healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("bus disconnected"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleSkip cancels whatever clip is currently playing. It accepts any
// method so a curl without flags works from the streamer's deck.
func (r *Runtime) handleSkip(w http.ResponseWriter, _ *http.Request) {
	if r.controller != nil {
		r.controller.Skip()
	}
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("skip requested"))
}
