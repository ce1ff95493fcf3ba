// Package video rescales video through ffmpeg (ffmpeg-go).
package video

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/docpipe/internal/common"
	"github.com/ternarybob/docpipe/internal/interfaces"
	"github.com/ternarybob/docpipe/internal/models"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Transcoder implements interfaces.VideoTranscoder
type Transcoder struct {
	tempDir string
	logger  arbor.ILogger
}

var _ interfaces.VideoTranscoder = (*Transcoder)(nil)

func NewTranscoder(config *common.VideoConfig, logger arbor.ILogger) *Transcoder {
	return &Transcoder{
		tempDir: config.TempDir,
		logger:  logger,
	}
}

// Resize scales to height with the width rounded to an even number and
// re-encodes as H.264 mp4. Scratch files live in a per-call directory.
func (t *Transcoder) Resize(ctx context.Context, content []byte, extension string, height int) ([]byte, error) {
	if height <= 0 || height%2 != 0 {
		return nil, fmt.Errorf("%w: height must be a positive even number, got %d", models.ErrInvalidParameter, height)
	}
	extension = strings.TrimPrefix(strings.ToLower(extension), ".")
	if extension == "" {
		extension = "mp4"
	}

	work, err := os.MkdirTemp(t.tempDir, "docpipe-video-*")
	if err != nil {
		return nil, fmt.Errorf("%w: create scratch directory: %v", models.ErrIO, err)
	}
	defer os.RemoveAll(work)

	in := filepath.Join(work, "input."+extension)
	out := filepath.Join(work, "output.mp4")
	if err := os.WriteFile(in, content, 0600); err != nil {
		return nil, fmt.Errorf("%w: write scratch input: %v", models.ErrIO, err)
	}

	compiled := ffmpeg.Input(in).
		Output(out, ffmpeg.KwArgs{
			"vf":       fmt.Sprintf("scale=-2:%d", height),
			"c:v":      "libx264",
			"preset":   "veryfast",
			"c:a":      "aac",
			"movflags": "+faststart",
		}).
		OverWriteOutput().
		Compile()

	// rebuild with the context so cancellation kills ffmpeg
	cmd := exec.CommandContext(ctx, compiled.Path, compiled.Args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	t.logger.Debug().Strs("args", cmd.Args).Msg("Running ffmpeg")
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: ffmpeg: %v: %s", models.ErrBackend, err, lastLine(stderr.String()))
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("%w: read ffmpeg output: %v", models.ErrIO, err)
	}

	t.logger.Debug().Int("input_size", len(content)).Int("output_size", len(data)).Int("height", height).Msg("Video resized")
	return data, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
