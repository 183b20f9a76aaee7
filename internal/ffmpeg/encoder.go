package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/reknow/combine-video/internal/logger"
)

// EncoderConfig holds configuration for the encoder
type EncoderConfig struct {
	Width     int
	Height    int
	Framerate int

	Codec       string // mpeg4, libx264, ...
	Quality     int    // -q:v for mpeg4-family codecs, 0 = encoder default
	Preset      string // only passed for x264/x265
	PixelFormat string // output pixel format, default yuv420p

	OutputPath string
}

// StartupGrace is how long StartEncoder watches a new ffmpeg process for an
// early exit, which is how a rejected output format or codec shows up.
var StartupGrace = 300 * time.Millisecond

// Encoder is a running ffmpeg process reading raw RGBA frames from stdin
type Encoder struct {
	cfg    EncoderConfig
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	done   chan error
	stderr *stderrTail
	frames int

	mu     sync.Mutex
	closed bool
}

// stderrTail keeps the last line ffmpeg printed
type stderrTail struct {
	mu   sync.Mutex
	line string
}

func (t *stderrTail) set(s string) {
	t.mu.Lock()
	t.line = s
	t.mu.Unlock()
}

func (t *stderrTail) get() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.line
}

// StartEncoder starts an ffmpeg process that appends every written frame to
// cfg.OutputPath at the configured frame rate.
func (f *FFmpeg) StartEncoder(ctx context.Context, cfg EncoderConfig) (*Encoder, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Framerate <= 0 {
		return nil, fmt.Errorf("invalid encoder geometry %dx%d@%d", cfg.Width, cfg.Height, cfg.Framerate)
	}
	if cfg.Codec == "" {
		cfg.Codec = "mpeg4"
	}
	if cfg.PixelFormat == "" {
		cfg.PixelFormat = "yuv420p"
	}

	args := buildEncoderArgs(cfg)
	cmd := exec.CommandContext(ctx, f.binaryPath, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("get stdin pipe: %w", err)
	}

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("get stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	e := &Encoder{
		cfg:    cfg,
		cmd:    cmd,
		stdin:  stdin,
		done:   make(chan error, 1),
		stderr: &stderrTail{},
	}

	go func() {
		// Wait must not run before stderr is drained.
		monitorOutput(bufio.NewScanner(stderrPipe), e.stderr)
		e.done <- e.exitError(cmd.Wait())
	}()

	timer := time.NewTimer(StartupGrace)
	defer timer.Stop()
	select {
	case err := <-e.done:
		stdin.Close()
		if err == nil {
			err = fmt.Errorf("ffmpeg exited before the first frame")
		}
		return nil, err
	case <-timer.C:
	}

	logger.Info("Encoder", "Writing %s (%dx%d @ %d fps, codec %s)",
		cfg.OutputPath, cfg.Width, cfg.Height, cfg.Framerate, cfg.Codec)
	return e, nil
}

// buildEncoderArgs builds FFmpeg arguments for raw RGBA input on stdin
func buildEncoderArgs(cfg EncoderConfig) []string {
	args := []string{
		"-y",
		"-v", "error",

		// Input
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-r", fmt.Sprintf("%d", cfg.Framerate),
		"-i", "pipe:0",

		// Video encoding
		"-an",
		"-c:v", cfg.Codec,
		"-pix_fmt", cfg.PixelFormat,
	}

	if cfg.Quality > 0 {
		args = append(args, "-q:v", fmt.Sprintf("%d", cfg.Quality))
	}
	if cfg.Preset != "" && (strings.HasPrefix(cfg.Codec, "libx264") || strings.HasPrefix(cfg.Codec, "libx265")) {
		args = append(args, "-preset", cfg.Preset)
	}

	return append(args, cfg.OutputPath)
}

// monitorOutput forwards ffmpeg's stderr to the log
func monitorOutput(scanner *bufio.Scanner, tail *stderrTail) {
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			logger.Warn("FFmpeg", "%s", line)
			tail.set(line)
		}
	}
}

// exitError decorates a failed exit with the last stderr line
func (e *Encoder) exitError(err error) error {
	if err == nil {
		return nil
	}
	if line := e.stderr.get(); line != "" {
		return fmt.Errorf("ffmpeg encoder: %w: %s", err, line)
	}
	return fmt.Errorf("ffmpeg encoder: %w", err)
}

// WriteFrame appends one frame. The image must match the encoder geometry.
func (e *Encoder) WriteFrame(img *image.RGBA) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("encoder closed")
	}
	b := img.Bounds()
	if b.Dx() != e.cfg.Width || b.Dy() != e.cfg.Height {
		return fmt.Errorf("frame %dx%d does not match encoder %dx%d", b.Dx(), b.Dy(), e.cfg.Width, e.cfg.Height)
	}

	if img.Stride == 4*b.Dx() {
		if _, err := e.stdin.Write(img.Pix[:4*b.Dx()*b.Dy()]); err != nil {
			return fmt.Errorf("write frame %d: %w", e.frames, err)
		}
	} else {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			off := img.PixOffset(b.Min.X, y)
			if _, err := e.stdin.Write(img.Pix[off : off+4*b.Dx()]); err != nil {
				return fmt.Errorf("write frame %d: %w", e.frames, err)
			}
		}
	}
	e.frames++
	return nil
}

// Close closes stdin and waits for ffmpeg to finish the file
func (e *Encoder) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.stdin.Close()
	e.mu.Unlock()

	return <-e.done
}
