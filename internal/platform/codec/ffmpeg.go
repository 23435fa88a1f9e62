// Package codec converts uploaded recordings to a format every transcription provider accepts.
package codec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Normalizer converts audio with extension ext into mp3.
type Normalizer interface {
	Normalize(ctx context.Context, data []byte, ext string) ([]byte, error)
}

// FFmpeg shells out to the ffmpeg binary.
type FFmpeg struct {
	bin     string
	timeout time.Duration
}

func NewFFmpeg(bin string) *FFmpeg {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpeg{bin: bin, timeout: 2 * time.Minute}
}

// NeedsNormalizing reports whether ext must be converted before transcription.
func NeedsNormalizing(ext string) bool {
	return ext != ".mp3" && ext != ".wav"
}

func (f *FFmpeg) Normalize(ctx context.Context, data []byte, ext string) ([]byte, error) {
	dir, err := os.MkdirTemp("", "codec-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input"+ext)
	out := filepath.Join(dir, "output.mp3")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, fmt.Errorf("write input: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.bin, "-y", "-i", in, "-vn", "-acodec", "libmp3lame", "-q:a", "2", out)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w: %s", err, tail(stderr.String(), 500))
	}
	return os.ReadFile(out)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
