package transcription

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Mixer combines per-speaker tracks into one file.
type Mixer interface {
	Mix(ctx context.Context, inputs []string, dest string) error
}

// FFmpegMixer mixes tracks with ffmpeg's amix filter.
type FFmpegMixer struct {
	Binary string
}

// Mix writes an MP3 of every input played together to dest.
func (m FFmpegMixer) Mix(ctx context.Context, inputs []string, dest string) error {
	args, err := mixArgs(inputs, dest)
	if err != nil {
		return err
	}
	binary := m.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg mix: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func mixArgs(inputs []string, dest string) ([]string, error) {
	if len(inputs) == 0 {
		return nil, errors.New("mix: no input tracks")
	}
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	var labels strings.Builder
	for i, in := range inputs {
		args = append(args, "-i", in)
		fmt.Fprintf(&labels, "[%d:a]", i)
	}
	filter := fmt.Sprintf("%samix=inputs=%d:duration=longest[aud]", labels.String(), len(inputs))
	args = append(args,
		"-filter_complex", filter,
		"-map", "[aud]",
		"-c:a", "libmp3lame",
		dest,
	)
	return args, nil
}
