package compositor

// Clock is the virtual epoch clock. Epoch advances by one second every
// Framerate ticks.
type Clock struct {
	Epoch     int64
	Tick      int    // ticks within the current second
	Total     uint64 // ticks since start
	Framerate int
}

// NewClock starts a clock at epoch
func NewClock(epoch int64, framerate int) Clock {
	return Clock{Epoch: epoch, Framerate: framerate}
}

// Advance moves the clock by one tick
func (c *Clock) Advance() {
	c.Total++
	c.Tick++
	if c.Tick >= c.Framerate {
		c.Epoch++
		c.Tick = 0
	}
}
