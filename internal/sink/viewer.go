package sink

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"

	"github.com/reknow/combine-video/internal/compositor"
	"github.com/reknow/combine-video/internal/logger"
	"github.com/reknow/combine-video/internal/metrics"
	"github.com/reknow/combine-video/internal/render"
	"github.com/reknow/combine-video/pkg/types"
)

// KeyDelay is how long the viewer sink waits for input after each canvas.
const KeyDelay = 5 * time.Millisecond

// Display shows canvases and reports key presses
type Display interface {
	Show(c *types.Composite, img *image.RGBA) error
	Keys() <-chan types.Key
}

// ViewerSink sends canvases to a Display and reacts to quit and snapshot keys.
type ViewerSink struct {
	display     Display
	snapshotDir string
	location    *time.Location
	delay       time.Duration
	metrics     *metrics.Metrics
	onClose     func() error
}

// NewViewerSink creates a viewer sink. Snapshots go to snapshotDir. onClose
// may be nil.
func NewViewerSink(d Display, snapshotDir string, loc *time.Location, m *metrics.Metrics, onClose func() error) *ViewerSink {
	if loc == nil {
		loc = time.Local
	}
	return &ViewerSink{
		display:     d,
		snapshotDir: snapshotDir,
		location:    loc,
		delay:       KeyDelay,
		metrics:     m,
		onClose:     onClose,
	}
}

// Emit shows c, waits KeyDelay and handles any pending keys.
func (s *ViewerSink) Emit(ctx context.Context, c *types.Composite) error {
	img := c.Image
	if c.BeforeRecordStart {
		img = render.Clone(c.Image)
		start := time.Unix(c.RecordStartEpoch, 0).In(s.location).Format(time.ANSIC)
		render.Banner(img, "recording starts at "+start)
	}

	if err := s.display.Show(c, img); err != nil {
		return err
	}
	s.metrics.FramesDisplayed.Add(1)

	timer := time.NewTimer(s.delay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
	}

	for {
		select {
		case k := <-s.display.Keys():
			switch {
			case k.IsQuit():
				logger.Info("Viewer", "Quit requested at tick %d", c.Tick)
				return compositor.ErrQuit
			case k.IsSnapshot():
				if err := s.snapshot(c.Image, c.Tick); err != nil {
					logger.Error("Viewer", "Snapshot failed: %v", err)
				}
			}
		default:
			return nil
		}
	}
}

func (s *ViewerSink) snapshot(img *image.RGBA, tick uint64) error {
	path := filepath.Join(s.snapshotDir, fmt.Sprintf("frame-%d.jpg", tick))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 95}); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	s.metrics.Snapshots.Add(1)
	logger.Info("Viewer", "Saved output image: %s", path)
	return nil
}

// Close runs the close hook, typically the viewer server shutdown.
func (s *ViewerSink) Close() error {
	if s.onClose == nil {
		return nil
	}
	return s.onClose()
}
