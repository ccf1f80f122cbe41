package speech

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

var ErrNoPlayer = errors.New("no audio player configured")

// ExecSink plays audio by writing it to a temp file and running an external
// player such as "mpg123 -q" or "ffplay -nodisp -autoexit".
type ExecSink struct {
	Command string
}

func (s ExecSink) Play(ctx context.Context, audio []byte) error {
	args := strings.Fields(s.Command)
	if len(args) == 0 {
		return ErrNoPlayer
	}

	f, err := os.CreateTemp("", "mri-speech-*.mp3")
	if err != nil {
		return fmt.Errorf("create audio file: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(audio); err != nil {
		f.Close()
		return fmt.Errorf("write audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close audio file: %w", err)
	}

	cmd := exec.CommandContext(ctx, args[0], append(args[1:], f.Name())...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}
