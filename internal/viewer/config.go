package viewer

import "time"

// Config defines the runtime configuration for the viewer server.
type Config struct {
	Addr           string
	Title          string
	JPEGQuality    int
	StatusInterval time.Duration
	KeyBuffer      int
	RunID          string
}

// DefaultConfig returns the viewer defaults.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8090",
		Title:          "combine-video",
		JPEGQuality:    80,
		StatusInterval: time.Second,
		KeyBuffer:      16,
	}
}
