// Package sink holds the two consumers of composed canvases: an encoder
// backed file writer and the interactive browser viewer.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/reknow/combine-video/internal/ffmpeg"
	"github.com/reknow/combine-video/internal/logger"
	"github.com/reknow/combine-video/internal/metrics"
	"github.com/reknow/combine-video/pkg/types"
)

// FrameWriter appends canvases to an encoded video
type FrameWriter interface {
	WriteFrame(img *image.RGBA) error
	Close() error
}

// SlideLogPath returns the path of the slide log written next to output.
func SlideLogPath(output string) string {
	return output + ".txt"
}

// FileSink writes canvases from the recording start onwards and logs every
// change of the shown slide.
type FileSink struct {
	mu           sync.Mutex
	out          FrameWriter
	slideLog     io.WriteCloser
	filename     string
	closed       bool
	frameCount   uint64
	bytesWritten uint64
	startTime    time.Time
	lastSlide    string
	metrics      *metrics.Metrics
}

// OpenFileSink starts an encoder for cfg.OutputPath and creates its slide
// log. initialEpoch is the first line of the log.
func OpenFileSink(ctx context.Context, ff *ffmpeg.FFmpeg, cfg ffmpeg.EncoderConfig, initialEpoch int64, m *metrics.Metrics) (*FileSink, error) {
	logFile, err := os.Create(SlideLogPath(cfg.OutputPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create slide log: %w", err)
	}

	enc, err := ff.StartEncoder(ctx, cfg)
	if err != nil {
		logFile.Close()
		os.Remove(logFile.Name())
		return nil, fmt.Errorf("failed to open output %s: %w", cfg.OutputPath, err)
	}

	s, err := NewFileSink(cfg.OutputPath, enc, logFile, initialEpoch, m)
	if err != nil {
		enc.Close()
		logFile.Close()
		return nil, err
	}
	return s, nil
}

// NewFileSink wraps an already opened writer and slide log.
func NewFileSink(filename string, out FrameWriter, slideLog io.WriteCloser, initialEpoch int64, m *metrics.Metrics) (*FileSink, error) {
	if _, err := fmt.Fprintf(slideLog, "%d\n", initialEpoch); err != nil {
		return nil, fmt.Errorf("failed to write slide log: %w", err)
	}
	return &FileSink{
		out:       out,
		slideLog:  slideLog,
		filename:  filename,
		startTime: time.Now(),
		metrics:   m,
	}, nil
}

// Emit writes c unless it lies before the recording start.
func (s *FileSink) Emit(ctx context.Context, c *types.Composite) error {
	if c.BeforeRecordStart {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("file sink closed")
	}
	if err := s.out.WriteFrame(c.Image); err != nil {
		return fmt.Errorf("write tick %d: %w", c.Tick, err)
	}
	s.frameCount++
	s.bytesWritten += uint64(len(c.Image.Pix))
	s.metrics.FramesWritten.Add(1)

	if c.Slide != "" && c.Slide != s.lastSlide {
		if _, err := fmt.Fprintf(s.slideLog, "%d %s\n", c.Epoch, c.Slide); err != nil {
			return fmt.Errorf("write slide log: %w", err)
		}
		s.lastSlide = c.Slide
		s.metrics.SlideTransitions.Add(1)
	}

	if s.frameCount == 1 {
		logger.Info("FileSink", "First frame written at epoch %d", c.Epoch)
	}
	return nil
}

// Close finishes the video and the slide log.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	err := errors.Join(s.out.Close(), s.slideLog.Close())
	st := s.statusLocked()
	logger.Info("FileSink", "Wrote %d frames (%d raw bytes) to %s in %s, last slide %q", st.FrameCount, st.BytesWritten,
		st.Filename, (time.Duration(st.DurationMS) * time.Millisecond).Round(time.Millisecond), st.Slide)
	return err
}

// Status returns the current recording status
func (s *FileSink) Status() RecordingStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *FileSink) statusLocked() RecordingStatus {
	return RecordingStatus{
		Recording:    !s.closed,
		Filename:     s.filename,
		FrameCount:   s.frameCount,
		BytesWritten: s.bytesWritten,
		DurationMS:   time.Since(s.startTime).Milliseconds(),
		StartTime:    s.startTime,
		Slide:        s.lastSlide,
	}
}

// ServeHTTP reports the recording status as JSON. Mounted at /api/recording
// next to /metrics in file mode.
func (s *FileSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Status()); err != nil {
		logger.Error("FileSink", "Encode status: %v", err)
	}
}

// RecordingStatus holds the current recording status
type RecordingStatus struct {
	Recording    bool      `json:"recording"`
	Filename     string    `json:"filename"`
	FrameCount   uint64    `json:"frame_count"`
	BytesWritten uint64    `json:"bytes_written"`
	DurationMS   int64     `json:"duration_ms"`
	StartTime    time.Time `json:"start_time"`
	Slide        string    `json:"slide"`
}
