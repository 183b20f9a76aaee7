package viewer

import (
	"sync"
	"time"

	"github.com/reknow/combine-video/pkg/types"
)

// Monitor keeps the state of the most recently displayed canvas.
type Monitor struct {
	runID string

	mu     sync.Mutex
	status Status
}

// NewMonitor creates a Monitor for one run.
func NewMonitor(runID string) *Monitor {
	return &Monitor{runID: runID, status: Status{RunID: runID}}
}

// Update records the composite that was just displayed.
func (m *Monitor) Update(c *types.Composite) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.status.Tick = c.Tick
	m.status.Epoch = c.Epoch
	m.status.Time = time.Unix(c.Epoch, 0).Format(time.ANSIC)
	m.status.RecordStartEpoch = c.RecordStartEpoch
	m.status.Recording = !c.BeforeRecordStart
	m.status.Splash = c.Splash
	m.status.Slide = c.Slide
	m.status.FramesDisplayed++
}

// MarkDone flags the run as finished.
func (m *Monitor) MarkDone() {
	m.mu.Lock()
	m.status.Done = true
	m.mu.Unlock()
}

// Snapshot returns a copy of the current status.
func (m *Monitor) Snapshot() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}
