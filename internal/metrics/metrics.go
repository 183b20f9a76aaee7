package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters of one compositing run
type Metrics struct {
	// Clock
	Ticks        atomic.Uint64
	CurrentEpoch atomic.Int64

	// Frame counters
	SourceFramesRead atomic.Uint64
	FramesComposed   atomic.Uint64
	FramesWritten    atomic.Uint64
	FramesDisplayed  atomic.Uint64
	SplashFrames     atomic.Uint64

	// Source lifecycle
	SourcesActive       atomic.Uint64
	SourcesExhausted    atomic.Uint64
	SuccessorsActivated atomic.Uint64
	SlotOverwrites      atomic.Uint64

	// Assets
	SlidesLoaded      atomic.Uint64
	SlideLoadFailures atomic.Uint64
	Snapshots         atomic.Uint64
	SlideTransitions  atomic.Uint64

	// Latency tracking
	TickLatencyMs atomic.Uint64

	registry *prometheus.Registry
}

// New creates a Metrics instance. runID is attached to every series as a
// constant label so scrapes from consecutive runs can be told apart.
func New(runID string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics(prometheus.Labels{"run_id": runID})
	return m
}

func (m *Metrics) registerPrometheusMetrics(labels prometheus.Labels) {
	gauge := func(name, help string, fn func() float64) {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name:        name,
				Help:        help,
				ConstLabels: labels,
			},
			fn,
		))
	}

	gauge("combine_ticks_total", "Output ticks processed",
		func() float64 { return float64(m.Ticks.Load()) })
	gauge("combine_current_epoch_seconds", "Epoch second the compositor clock is at",
		func() float64 { return float64(m.CurrentEpoch.Load()) })

	gauge("combine_source_frames_read_total", "Frames pulled from all sources",
		func() float64 { return float64(m.SourceFramesRead.Load()) })
	gauge("combine_frames_composed_total", "Canvases composed",
		func() float64 { return float64(m.FramesComposed.Load()) })
	gauge("combine_frames_written_total", "Canvases appended to the output file",
		func() float64 { return float64(m.FramesWritten.Load()) })
	gauge("combine_frames_displayed_total", "Canvases sent to the viewer",
		func() float64 { return float64(m.FramesDisplayed.Load()) })
	gauge("combine_splash_frames_total", "Canvases rendered as the title screen",
		func() float64 { return float64(m.SplashFrames.Load()) })

	gauge("combine_sources_active", "Source entries currently active",
		func() float64 { return float64(m.SourcesActive.Load()) })
	gauge("combine_sources_exhausted_total", "Source entries that reached end of stream",
		func() float64 { return float64(m.SourcesExhausted.Load()) })
	gauge("combine_successors_activated_total", "Continuation entries activated",
		func() float64 { return float64(m.SuccessorsActivated.Load()) })
	gauge("combine_slot_overwrites_total", "Ticks on which two entries produced a frame for the same slot",
		func() float64 { return float64(m.SlotOverwrites.Load()) })

	gauge("combine_slides_loaded_total", "Slide images decoded into the cache",
		func() float64 { return float64(m.SlidesLoaded.Load()) })
	gauge("combine_slide_load_failures_total", "Slide images replaced by the placeholder",
		func() float64 { return float64(m.SlideLoadFailures.Load()) })
	gauge("combine_slide_transitions_total", "Slide changes recorded in the slide log",
		func() float64 { return float64(m.SlideTransitions.Load()) })
	gauge("combine_snapshots_total", "Snapshot images written from the viewer",
		func() float64 { return float64(m.Snapshots.Load()) })

	gauge("combine_tick_latency_ms", "Wall time spent on the last tick in milliseconds",
		func() float64 { return float64(m.TickLatencyMs.Load()) })
}

// UpdateTickLatency records how long the last tick took
func (m *Metrics) UpdateTickLatency(d time.Duration) {
	m.TickLatencyMs.Store(uint64(d.Milliseconds()))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (tests gather from it directly)
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// StartServer serves /metrics and any extra routes on its own listener. Used
// in file mode where no viewer is running.
func (m *Metrics) StartServer(addr string, routes map[string]http.Handler) error {
	return http.ListenAndServe(addr, m.ServeMux(routes))
}

// ServeMux returns the mux StartServer listens with.
func (m *Metrics) ServeMux(routes map[string]http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	for pattern, h := range routes {
		mux.Handle(pattern, h)
	}
	return mux
}
