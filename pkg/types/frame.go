package types

import "image"

// Composite is one finished output canvas together with the clock state it
// was composed for
type Composite struct {
	Image *image.RGBA // Canvas, fixed size for the whole run
	Tick  uint64      // Sequential output tick number
	Epoch int64       // Epoch second the canvas represents

	RecordStartEpoch  int64 // Epoch at which file output begins
	BeforeRecordStart bool  // Epoch < RecordStartEpoch: not written to file
	Splash            bool  // Canvas is the title screen

	Slide string // Path of the slide shown, "" when none
}

// Key is a key press forwarded from the interactive viewer
type Key rune

// Key constants recognised by the interactive sink
const (
	KeyEscape Key = 27
	KeyQuit   Key = 'q'
	KeyShot   Key = 's'
)

// IsQuit reports whether k terminates an interactive run
func (k Key) IsQuit() bool {
	return k == 'q' || k == 'Q' || k == KeyEscape
}

// IsSnapshot reports whether k requests a snapshot of the current canvas
func (k Key) IsSnapshot() bool {
	return k == 's' || k == 'S'
}
