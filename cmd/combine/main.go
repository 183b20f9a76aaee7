package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/reknow/combine-video/internal/assets"
	"github.com/reknow/combine-video/internal/compositor"
	"github.com/reknow/combine-video/internal/config"
	"github.com/reknow/combine-video/internal/ffmpeg"
	"github.com/reknow/combine-video/internal/layout"
	"github.com/reknow/combine-video/internal/logger"
	"github.com/reknow/combine-video/internal/metrics"
	"github.com/reknow/combine-video/internal/sink"
	"github.com/reknow/combine-video/internal/source"
	"github.com/reknow/combine-video/internal/timestamp"
	"github.com/reknow/combine-video/internal/viewer"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Parse(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "ERROR: %v (run with -h for usage)\n", err)
		return 1
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}
	logger.Init(level, os.Stdout, os.Stderr, cfg.LogColor)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := newCombiner(ctx, cfg)
	if err != nil {
		logger.Error("Main", "%v", err)
		return 1
	}

	code := 0
	if err := c.comp.Run(ctx); err != nil {
		switch {
		case errors.Is(err, compositor.ErrQuit):
			logger.Info("Main", "Stopped by user")
		case errors.Is(err, context.Canceled):
			logger.Warn("Main", "Interrupted, output finalized up to epoch %d", c.comp.Clock().Epoch)
			code = 1
		default:
			logger.Error("Main", "Run failed: %v", err)
			code = 1
		}
	}
	if err := c.close(); err != nil && !cfg.Interactive() {
		// the encoder failed to finish the file
		code = 1
	}
	return code
}

// combiner owns everything opened during setup
type combiner struct {
	runID   string
	metrics *metrics.Metrics
	reg     *source.Registry
	out     compositor.Sink
	comp    *compositor.Compositor
}

// newCombiner performs setup in an order that reports descriptor and layout
// errors before any output is opened.
func newCombiner(ctx context.Context, cfg *config.Config) (*combiner, error) {
	runID := uuid.NewString()
	logger.Info("Main", "combine-video run %s starting", runID)
	for _, w := range cfg.Warnings() {
		logger.Warn("Main", "%s", w)
	}

	descs, err := source.ParseDescriptors(cfg.Sources)
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	ff, err := ffmpeg.New(cfg.FFmpeg.FFmpegPath, cfg.FFmpeg.FFprobePath)
	if err != nil {
		return nil, err
	}

	opts := source.Options{
		SlideSlot:       cfg.SlideSlot,
		StartSlot:       cfg.StartSlot,
		PerspectiveSlot: cfg.PerspectiveSlot,
	}
	if cfg.PerspectiveSlot >= 0 {
		m, err := assets.LoadTransform(cfg.TransformPath)
		if err != nil {
			return nil, err
		}
		opts.Transform = &m
		logger.Info("Main", "Perspective correction for slot %d from %s", cfg.PerspectiveSlot, cfg.TransformPath)
	}

	var hr assets.HeartRate
	if cfg.HeartRatePath != "" {
		if hr, err = assets.LoadHeartRate(cfg.HeartRatePath); err != nil {
			return nil, err
		}
		logger.Info("Main", "Loaded %d heart-rate readings", len(hr))
	}

	branding, err := assets.LoadBranding(cfg.Logo, cfg.LogoMask)
	if err != nil {
		return nil, err
	}

	open := func(ctx context.Context, path string) (source.FrameReader, error) {
		d, err := ff.OpenDecoder(ctx, path)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	reg, err := source.Build(ctx, descs, opts, open, timestamp.NewResolver(ff))
	if err != nil {
		return nil, err
	}

	lay, err := layout.Select(reg.SlotCount(), cfg.SlideSlot != source.NoSlot)
	if err != nil {
		reg.Close()
		return nil, err
	}
	logger.Info("Main", "Layout %s %dx%d for slots %v", lay.Kind, lay.Size.X, lay.Size.Y, reg.Slots())

	c := &combiner{
		runID:   runID,
		metrics: metrics.New(runID),
		reg:     reg,
	}

	if cfg.Interactive() {
		c.out, err = c.openViewer(cfg, loc)
	} else {
		c.out, err = c.openFile(ctx, ff, cfg, lay)
	}
	if err != nil {
		reg.Close()
		return nil, err
	}

	c.comp = compositor.New(compositor.Config{
		Framerate:  cfg.Framerate,
		SlideDir:   cfg.SlideDir,
		FixedSlide: cfg.FixedSlide,
		SlideSlot:  cfg.SlideSlot,
		Title:      cfg.Title,
		Location:   loc,
	}, reg, lay, branding, hr, c.out, c.metrics)
	return c, nil
}

func (c *combiner) openViewer(cfg *config.Config, loc *time.Location) (compositor.Sink, error) {
	srv := viewer.NewServer(viewer.Config{
		Addr:        cfg.Viewer.Addr,
		Title:       cfg.Title,
		JPEGQuality: cfg.Viewer.JPEGQuality,
		RunID:       c.runID,
	}, c.metrics)
	if err := srv.Start(); err != nil {
		return nil, err
	}
	logger.Info("Main", "%s", viewer.HelpText)

	shutdown := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
	return sink.NewViewerSink(srv, cfg.Viewer.SnapshotDir, loc, c.metrics, shutdown), nil
}

func (c *combiner) openFile(ctx context.Context, ff *ffmpeg.FFmpeg, cfg *config.Config, lay layout.Layout) (compositor.Sink, error) {
	// The encoder outlives a cancelled run so the file can be finalized.
	fs, err := sink.OpenFileSink(context.WithoutCancel(ctx), ff, ffmpeg.EncoderConfig{
		Width:      lay.Size.X,
		Height:     lay.Size.Y,
		Framerate:  cfg.Framerate,
		Codec:      cfg.Encoder.Codec,
		Quality:    cfg.Encoder.Quality,
		Preset:     cfg.Encoder.Preset,
		OutputPath: cfg.Output,
	}, c.reg.MinEpoch, c.metrics)
	if err != nil {
		return nil, err
	}

	if cfg.MetricsAddr != "" {
		go func() {
			logger.Info("Main", "Starting metrics server on %s", cfg.MetricsAddr)
			routes := map[string]http.Handler{"/api/recording": fs}
			if err := c.metrics.StartServer(cfg.MetricsAddr, routes); err != nil {
				logger.Error("Main", "Metrics server error: %v", err)
			}
		}()
	}
	return fs, nil
}

func (c *combiner) close() error {
	err := c.out.Close()
	if err != nil {
		logger.Error("Main", "Closing output: %v", err)
	}
	c.reg.Close()
	return err
}
