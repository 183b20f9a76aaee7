package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/reknow/combine-video/internal/compositor"
	"github.com/reknow/combine-video/internal/ffmpeg"
	"github.com/reknow/combine-video/internal/metrics"
	"github.com/reknow/combine-video/pkg/types"
)

type fakeWriter struct {
	frames int
	closed bool
	err    error
}

func (w *fakeWriter) WriteFrame(img *image.RGBA) error {
	if w.err != nil {
		return w.err
	}
	w.frames++
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

type bufferLog struct {
	bytes.Buffer
	closed bool
}

func (b *bufferLog) Close() error {
	b.closed = true
	return nil
}

func composite(tick uint64, epoch int64, before bool, slide string) *types.Composite {
	return &types.Composite{
		Image:             image.NewRGBA(image.Rect(0, 0, 32, 18)),
		Tick:              tick,
		Epoch:             epoch,
		RecordStartEpoch:  1000,
		BeforeRecordStart: before,
		Slide:             slide,
	}
}

func TestFileSinkSkipsPrerollAndLogsSlides(t *testing.T) {
	w := &fakeWriter{}
	log := &bufferLog{}
	m := metrics.New("t")

	s, err := NewFileSink("out.avi", w, log, 995, m)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}

	ctx := context.Background()
	steps := []struct {
		epoch  int64
		before bool
		slide  string
	}{
		{998, true, "slides/a.png"},
		{1000, false, ""},
		{1000, false, "slides/a.png"},
		{1001, false, "slides/a.png"},
		{1002, false, ""},
		{1003, false, "slides/b.png"},
		{1004, false, "slides/a.png"},
	}
	for i, st := range steps {
		if err := s.Emit(ctx, composite(uint64(i), st.epoch, st.before, st.slide)); err != nil {
			t.Fatalf("Emit %d: %v", i, err)
		}
	}

	if w.frames != 6 {
		t.Fatalf("frames written = %d, want 6", w.frames)
	}
	want := "995\n1000 slides/a.png\n1003 slides/b.png\n1004 slides/a.png\n"
	if got := log.String(); got != want {
		t.Fatalf("slide log:\n%q\nwant\n%q", got, want)
	}
	if m.FramesWritten.Load() != 6 || m.SlideTransitions.Load() != 3 {
		t.Fatalf("metrics written=%d transitions=%d", m.FramesWritten.Load(), m.SlideTransitions.Load())
	}

	st := s.Status()
	if !st.Recording || st.FrameCount != 6 || st.BytesWritten != 6*32*18*4 || st.Slide != "slides/a.png" {
		t.Fatalf("status = %+v", st)
	}

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("GET", "/api/recording", nil))
	var served RecordingStatus
	if err := json.NewDecoder(rec.Body).Decode(&served); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if served.Filename != "out.avi" || served.FrameCount != 6 || served.Slide != "slides/a.png" {
		t.Fatalf("served status = %+v", served)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !w.closed || !log.closed || s.Status().Recording {
		t.Fatal("sink not closed")
	}
	if err := s.Emit(ctx, composite(9, 1005, false, "")); err == nil {
		t.Fatal("expected error after close")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestFileSinkWriteError(t *testing.T) {
	boom := errors.New("pipe closed")
	s, err := NewFileSink("out.avi", &fakeWriter{err: boom}, &bufferLog{}, 0, metrics.New("t"))
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	if err := s.Emit(context.Background(), composite(0, 1000, false, "")); !errors.Is(err, boom) {
		t.Fatalf("Emit error = %v", err)
	}
}

func TestOpenFileSinkEncoderRejected(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "ffmpeg")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho 'Unknown encoder' >&2\nexit 1\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	ff, err := ffmpeg.New(script, script)
	if err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "o.avi")
	cfg := ffmpeg.EncoderConfig{Width: 64, Height: 36, Framerate: 25, Codec: "nope", OutputPath: out}
	if _, err := OpenFileSink(context.Background(), ff, cfg, 1000, metrics.New("t")); err == nil {
		t.Fatal("expected error for a rejected encoder")
	}
	if _, err := os.Stat(SlideLogPath(out)); !os.IsNotExist(err) {
		t.Fatalf("slide log left behind: %v", err)
	}
}

func TestSlideLogPath(t *testing.T) {
	if got := SlideLogPath("talk/output.avi"); got != "talk/output.avi.txt" {
		t.Fatalf("SlideLogPath = %q", got)
	}
}

type fakeDisplay struct {
	shown []*image.RGBA
	keys  chan types.Key
}

func newFakeDisplay() *fakeDisplay {
	return &fakeDisplay{keys: make(chan types.Key, 8)}
}

func (d *fakeDisplay) Show(c *types.Composite, img *image.RGBA) error {
	d.shown = append(d.shown, img)
	return nil
}

func (d *fakeDisplay) Keys() <-chan types.Key {
	return d.keys
}

func TestViewerSinkBannerBeforeRecordStart(t *testing.T) {
	d := newFakeDisplay()
	s := NewViewerSink(d, t.TempDir(), time.UTC, metrics.New("t"), nil)

	c := composite(0, 998, true, "")
	c.Image = image.NewRGBA(image.Rect(0, 0, 640, 360))
	for i := range c.Image.Pix {
		c.Image.Pix[i] = 100
	}

	if err := s.Emit(context.Background(), c); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(d.shown) != 1 {
		t.Fatalf("shown = %d", len(d.shown))
	}
	if d.shown[0] == c.Image {
		t.Fatal("banner drawn onto the composed canvas")
	}
	if got := d.shown[0].RGBAAt(1, 1); got != (color.RGBA{A: 255}) {
		t.Fatalf("banner pixel = %v", got)
	}
	if got := c.Image.RGBAAt(1, 1); got.R != 100 {
		t.Fatalf("source canvas modified: %v", got)
	}

	after := composite(1, 1000, false, "")
	if err := s.Emit(context.Background(), after); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if d.shown[1] != after.Image {
		t.Fatal("recording canvas should be shown as is")
	}
}

func TestViewerSinkKeys(t *testing.T) {
	d := newFakeDisplay()
	dir := t.TempDir()
	m := metrics.New("t")
	closed := false
	s := NewViewerSink(d, dir, nil, m, func() error { closed = true; return nil })
	ctx := context.Background()

	if err := s.Emit(ctx, composite(0, 1000, false, "")); err != nil {
		t.Fatalf("Emit without keys: %v", err)
	}

	d.keys <- types.KeyShot
	d.keys <- 'S'
	if err := s.Emit(ctx, composite(7, 1000, false, "")); err != nil {
		t.Fatalf("Emit with snapshot: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "frame-7.jpg")); err != nil {
		t.Fatalf("snapshot missing: %v", err)
	}
	if m.Snapshots.Load() != 2 {
		t.Fatalf("snapshots = %d", m.Snapshots.Load())
	}

	d.keys <- 'x'
	d.keys <- types.KeyEscape
	if err := s.Emit(ctx, composite(8, 1000, false, "")); !errors.Is(err, compositor.ErrQuit) {
		t.Fatalf("Emit error = %v, want ErrQuit", err)
	}
	if m.FramesDisplayed.Load() != 3 {
		t.Fatalf("displayed = %d", m.FramesDisplayed.Load())
	}

	if err := s.Close(); err != nil || !closed {
		t.Fatalf("Close = %v, hook called %v", err, closed)
	}
}

func TestViewerSinkSnapshotOmitsBanner(t *testing.T) {
	d := newFakeDisplay()
	dir := t.TempDir()
	s := NewViewerSink(d, dir, time.UTC, metrics.New("t"), nil)

	c := composite(3, 998, true, "")
	c.Image = image.NewRGBA(image.Rect(0, 0, 640, 360))
	for i := range c.Image.Pix {
		c.Image.Pix[i] = 100
	}
	d.keys <- types.KeyShot
	if err := s.Emit(context.Background(), c); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "frame-3.jpg"))
	if err != nil {
		t.Fatalf("snapshot missing: %v", err)
	}
	defer f.Close()
	img, err := jpeg.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	// the banner strip would be black here
	if r, _, _, _ := img.At(5, 5).RGBA(); r>>8 < 80 {
		t.Fatalf("snapshot pixel = %v, want the composed canvas", img.At(5, 5))
	}
}

func TestViewerSinkHonoursCancellation(t *testing.T) {
	d := newFakeDisplay()
	s := NewViewerSink(d, t.TempDir(), nil, metrics.New("t"), nil)
	s.delay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Emit(ctx, composite(0, 1000, false, "")); !errors.Is(err, context.Canceled) {
		t.Fatalf("Emit error = %v", err)
	}
}
