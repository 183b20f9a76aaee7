// Package compositor drives a run: it advances the epoch clock, pulls one
// frame from every eligible source per tick, lays the frames and overlays
// out on a fixed canvas and hands the canvas to a sink.
package compositor

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"time"

	"github.com/reknow/combine-video/internal/assets"
	"github.com/reknow/combine-video/internal/layout"
	"github.com/reknow/combine-video/internal/logger"
	"github.com/reknow/combine-video/internal/metrics"
	"github.com/reknow/combine-video/internal/render"
	"github.com/reknow/combine-video/internal/source"
	"github.com/reknow/combine-video/pkg/types"
)

// ErrQuit is returned by a sink when the user asked to stop
var ErrQuit = errors.New("quit requested")

// FixedSlideOnly as SlideSlot shows only the fixed slide
const FixedSlideOnly = -2

// PrerollSeconds is the length of the title screen
const PrerollSeconds = 5

// Sink consumes composed canvases. Returning ErrQuit ends the run cleanly.
type Sink interface {
	Emit(ctx context.Context, c *types.Composite) error
	Close() error
}

// Config holds the compositor settings
type Config struct {
	Framerate  int
	SlideDir   string
	FixedSlide string
	SlideSlot  int // source.NoSlot, FixedSlideOnly or a slot number
	Title      string
	Location   *time.Location // clock overlay zone, nil for local time
}

// Compositor owns the clock and the per-run state of the loop
type Compositor struct {
	cfg      Config
	reg      *source.Registry
	layout   layout.Layout
	slides   *assets.SlideCache
	branding *assets.Branding
	hr       assets.HeartRate
	sink     Sink
	metrics  *metrics.Metrics

	clock   Clock
	slide   string
	hrValue float64
}

// New wires a compositor. hr may be nil.
func New(cfg Config, reg *source.Registry, lay layout.Layout, branding *assets.Branding,
	hr assets.HeartRate, sink Sink, m *metrics.Metrics) *Compositor {
	if cfg.Framerate <= 0 {
		cfg.Framerate = 25
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	c := &Compositor{
		cfg:      cfg,
		reg:      reg,
		layout:   lay,
		branding: branding,
		hr:       hr,
		sink:     sink,
		metrics:  m,
		clock:    NewClock(reg.MinEpoch, cfg.Framerate),
		slide:    cfg.FixedSlide,
		hrValue:  -1,
	}
	if lay.HasSlide() {
		c.slides = assets.NewSlideCache(lay.Slide.Size(), branding.Logo, m)
	}
	return c
}

// Clock returns a copy of the current clock
func (c *Compositor) Clock() Clock {
	return c.clock
}

// Run composes ticks until every source is exhausted, the sink asks to
// quit or ctx is cancelled. Cancellation is only observed between ticks.
func (c *Compositor) Run(ctx context.Context) error {
	logger.Info("Compositor", "Starting at epoch %d (%s), recording from %d, %d fps, layout %s %dx%d",
		c.clock.Epoch, c.formatTime(c.clock.Epoch), c.reg.RecordStartEpoch, c.cfg.Framerate,
		c.layout.Kind, c.layout.Size.X, c.layout.Size.Y)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := c.Step(ctx)
		if err != nil {
			return err
		}
		if done {
			logger.Info("Compositor", "All sources exhausted at epoch %d after %d ticks",
				c.clock.Epoch, c.clock.Total)
			return nil
		}
	}
}

// Step runs one tick. It reports done once no source is active.
func (c *Compositor) Step(ctx context.Context) (bool, error) {
	start := time.Now()
	epoch := c.clock.Epoch

	frames, matched := c.pullFrames(epoch)

	switch {
	case matched != "":
		c.slide = matched
	case c.cfg.FixedSlide != "":
		// keep the previous slide
	default:
		c.slide = ""
	}

	if c.reg.Done() {
		return true, nil
	}

	if v, ok := c.hr.Lookup(epoch); ok {
		c.hrValue = v
	}

	comp := &types.Composite{
		Tick:              c.clock.Total,
		Epoch:             epoch,
		RecordStartEpoch:  c.reg.RecordStartEpoch,
		BeforeRecordStart: epoch < c.reg.RecordStartEpoch,
	}
	if c.inPreroll(epoch) {
		comp.Image = c.splash()
		comp.Splash = true
		c.metrics.SplashFrames.Add(1)
	} else {
		comp.Image = c.compose(frames, epoch)
		if c.layout.HasSlide() {
			comp.Slide = c.slide
		}
	}
	c.metrics.FramesComposed.Add(1)

	if err := c.sink.Emit(ctx, comp); err != nil {
		return false, err
	}

	c.clock.Advance()
	c.metrics.Ticks.Add(1)
	c.metrics.CurrentEpoch.Store(c.clock.Epoch)
	c.metrics.SourcesActive.Store(uint64(c.reg.ActiveCount()))
	c.metrics.UpdateTickLatency(time.Since(start))
	return false, nil
}

// pullFrames reads one frame from every eligible entry in registry order.
// It returns the processed frame per layout cell (nil stays black) and the
// slide matched by the reference source, if any.
func (c *Compositor) pullFrames(epoch int64) ([]*image.RGBA, string) {
	frames := make([]*image.RGBA, len(c.layout.Cells))
	matched := ""
	var activate []int

	for i, e := range c.reg.Entries {
		if e.Status != source.Active {
			continue
		}
		if !e.Continuation && epoch < e.StartEpoch {
			continue
		}

		img, err := e.ReadFrame()
		if err != nil {
			if next := c.reg.Exhaust(i); next >= 0 {
				activate = append(activate, next)
			}
			c.metrics.SourcesExhausted.Add(1)
			continue
		}
		c.metrics.SourceFramesRead.Add(1)

		li := c.reg.LayoutIndex(e.Slot)
		if li < 0 || li >= len(frames) {
			continue
		}
		if frames[li] != nil {
			logger.Warn("Compositor", "Overwriting slot %d with %s at epoch %d", e.Slot, e.Path, epoch)
			c.metrics.SlotOverwrites.Add(1)
		}

		cell := c.layout.Cells[li]
		frame := render.Resize(img, cell.Dx(), cell.Dy())
		if e.Transform != nil {
			warped, err := render.CorrectPerspective(frame, *e.Transform)
			if err != nil {
				logger.Warn("Compositor", "Perspective correction for %s: %v", e.Path, err)
			} else {
				frame = warped
			}
		}
		render.FrameCounter(frame, e.CurrentFrame)

		if e.Slot == c.cfg.SlideSlot && e.Matches != nil {
			if name, ok := e.Matches.Lookup(e.CurrentFrame); ok {
				matched = filepath.Join(c.cfg.SlideDir, name)
			}
		}
		e.CurrentFrame++
		frames[li] = frame
	}

	// Successors are first pulled on the next tick.
	for _, i := range activate {
		c.reg.Activate(i)
		c.metrics.SuccessorsActivated.Add(1)
	}
	return frames, matched
}

func (c *Compositor) inPreroll(epoch int64) bool {
	if !c.reg.HasStartSlot {
		return false
	}
	rs := c.reg.RecordStartEpoch
	return epoch >= rs && epoch < rs+PrerollSeconds
}

func (c *Compositor) compose(frames []*image.RGBA, epoch int64) *image.RGBA {
	canvas := render.NewCanvas(c.layout.Size.X, c.layout.Size.Y)
	for li, f := range frames {
		if f != nil {
			render.Place(canvas, c.layout.Cells[li], f)
		}
	}

	if c.slides != nil && c.slide != "" {
		render.Place(canvas, c.layout.Slide, c.slides.Get(c.slide))
	}

	c.branding.Draw(canvas)
	render.Clock(canvas, c.formatTime(epoch))
	if c.hrValue > 0 {
		render.HeartRate(canvas, c.hrValue)
	}
	return canvas
}

func (c *Compositor) splash() *image.RGBA {
	canvas := render.NewCanvas(c.layout.Size.X, c.layout.Size.Y)
	mid := c.layout.Size.Y / 2
	if c.cfg.Title != "" {
		render.DrawCentered(canvas, c.cfg.Title, mid-20, render.White, 3)
	}
	render.DrawCentered(canvas, c.formatTime(c.reg.RecordStartEpoch), mid+40, render.White, 2)
	c.branding.Draw(canvas)
	return canvas
}

func (c *Compositor) formatTime(epoch int64) string {
	return time.Unix(epoch, 0).In(c.cfg.Location).Format(time.ANSIC)
}
