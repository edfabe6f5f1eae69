package playback

import (
	"context"
	"log/slog"
	"time"

	"github.com/cheervox-labs/cheervox/internal/config"
)

// State is the terminal outcome of playing one clip.
type State int

const (
	StateIdle State = iota
	StatePlaying
	StateCompleted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Controller plays one clip at a time with a live skip signal and a hard
// duration cap. Playback runs on the caller's goroutine; a Play call
// returns only when the clip completed, was skipped, or hit the cap, so
// the processing loop is serialized one task at a time.
type Controller struct {
	player Player
	cfg    config.PlaybackConfig
	logger *slog.Logger
	skip   chan struct{}
}

func NewController(player Player, cfg config.PlaybackConfig, log *slog.Logger) *Controller {
	return &Controller{
		player: player,
		cfg:    cfg,
		logger: log.With(slog.String("component", "playback")),
		skip:   make(chan struct{}, 1),
	}
}

// Skip raises the cancellation signal. Safe to call from any goroutine at
// any time; a signal raised while nothing is playing applies to nothing
// (it is drained at the start of the next Play).
func (c *Controller) Skip() {
	select {
	case c.skip <- struct{}{}:
	default:
	}
}

// Play runs the clip at path to a terminal state. The clip is stopped at
// min(duration, hard cap) even if the player keeps running.
func (c *Controller) Play(ctx context.Context, path string, duration time.Duration) (State, error) {
	hardCap := time.Duration(c.cfg.HardCapSeconds) * time.Second
	limit := duration
	if limit <= 0 || limit > hardCap {
		limit = hardCap
	}

	// discard a skip raised between tasks
	select {
	case <-c.skip:
	default:
	}

	playCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- c.player.Play(playCtx, path)
	}()

	start := time.Now()
	poll := time.Duration(c.cfg.PollIntervalMS) * time.Millisecond
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			if err != nil {
				return StateCompleted, err
			}
			return StateCompleted, nil
		case <-c.skip:
			c.logger.Info("playback skipped", slog.String("path", path))
			cancel()
			<-done
			return StateCancelled, nil
		case <-ctx.Done():
			cancel()
			<-done
			return StateCancelled, ctx.Err()
		case <-ticker.C:
			if time.Since(start) >= limit {
				cancel()
				<-done
				return StateCompleted, nil
			}
		}
	}
}
