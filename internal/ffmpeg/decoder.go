package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"sync"

	"github.com/reknow/combine-video/internal/logger"
)

// ErrEndOfStream is returned by ReadFrame once the source has no more frames.
var ErrEndOfStream = errors.New("end of stream")

// Decoder streams decoded RGBA frames from one video file.
type Decoder struct {
	path   string
	width  int
	height int
	info   *VideoInfo

	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	frames int
}

// OpenDecoder probes path and starts an ffmpeg process writing raw RGBA
// frames at the source resolution to its stdout.
func (f *FFmpeg) OpenDecoder(ctx context.Context, path string) (*Decoder, error) {
	info, err := f.GetVideoInfo(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	args := buildDecoderArgs(path)
	cmd := exec.CommandContext(ctx, f.binaryPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("get stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	d := &Decoder{
		path:   path,
		width:  info.Width,
		height: info.Height,
		info:   info,
		cmd:    cmd,
		stdout: stdout,
		reader: bufio.NewReaderSize(stdout, info.Width*info.Height*4),
		cancel: cancel,
	}

	logger.Debug("Decoder", "Opened %s (%dx%d @ %.2f fps, %.1fs)",
		path, info.Width, info.Height, info.Framerate, info.Duration)
	return d, nil
}

func buildDecoderArgs(path string) []string {
	return []string{
		"-v", "error",
		"-nostdin",
		// Frames keep their stored size, which is what ffprobe reports.
		"-noautorotate",
		"-i", path,
		"-an",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	}
}

// Duration returns the container duration in seconds, 0 when unknown
func (d *Decoder) Duration() float64 {
	return d.info.Duration
}

// ReadFrame blocks until the next frame is decoded. It returns
// ErrEndOfStream when the file is exhausted or the process died.
func (d *Decoder) ReadFrame() (*image.RGBA, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrEndOfStream
	}

	img := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	if _, err := io.ReadFull(d.reader, img.Pix); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrEndOfStream
		}
		return nil, fmt.Errorf("read frame %d of %s: %w: %v", d.frames, d.path, ErrEndOfStream, err)
	}
	d.frames++
	return img, nil
}

// Close stops the ffmpeg process. Safe to call more than once.
func (d *Decoder) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.stdout.Close()
	// The process is killed through the context; its exit status is noise.
	_ = d.cmd.Wait()
	return nil
}
