package playback

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/mattn/go-shellwords"
)

// Player starts playback of an audio file and blocks until playback ends
// or ctx is cancelled.
type Player interface {
	Play(ctx context.Context, path string) error
}

// ExecPlayer shells out to an external audio player (aplay, afplay,
// ffplay...). Cancelling the context kills the process, which stops the
// sound immediately.
type ExecPlayer struct {
	cmd []string
}

func NewExecPlayer(command string) (*ExecPlayer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse playback command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("playback command empty")
	}
	return &ExecPlayer{cmd: args}, nil
}

func (p *ExecPlayer) Play(ctx context.Context, path string) error {
	args := append(append([]string{}, p.cmd[1:]...), path)
	cmd := exec.CommandContext(ctx, p.cmd[0], args...)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("playback command failed: %w", err)
	}
	return nil
}
