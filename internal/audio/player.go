package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/mattn/go-shellwords"
)

// Player renders a clip on the local audio device and blocks until done.
type Player interface {
	Play(ctx context.Context, clip Clip) error
}

// DefaultPlayerCommand returns the platform's stock command-line player.
func DefaultPlayerCommand() string {
	if runtime.GOOS == "darwin" {
		return "afplay"
	}
	return "aplay -q"
}

// ExecPlayer writes the clip to a temporary WAV and hands it to an external
// player command.
type ExecPlayer struct {
	command []string
}

func NewExecPlayer(command string) (*ExecPlayer, error) {
	if strings.TrimSpace(command) == "" {
		command = DefaultPlayerCommand()
	}
	parts, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse player command: %w", err)
	}
	if len(parts) == 0 {
		return nil, errors.New("player command is empty")
	}
	return &ExecPlayer{command: parts}, nil
}

func (p *ExecPlayer) Play(ctx context.Context, clip Clip) error {
	if len(clip.Frames) == 0 {
		return nil
	}
	tmp, err := os.CreateTemp("", "loqa-tts-*.wav")
	if err != nil {
		return fmt.Errorf("create playback file: %w", err)
	}
	defer os.Remove(tmp.Name())

	rate := clip.SampleRate
	if rate <= 0 {
		rate = SampleRate
	}
	if err := EncodeFrames(tmp, clip.Frames, rate); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	args := append(append([]string{}, p.command[1:]...), tmp.Name())
	cmd := exec.CommandContext(ctx, p.command[0], args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("player %s failed: %w: %s", p.command[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}
