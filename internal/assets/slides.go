package assets

import (
	"image"

	"github.com/reknow/combine-video/internal/logger"
	"github.com/reknow/combine-video/internal/metrics"
	"github.com/reknow/combine-video/internal/render"
)

// SlideCache decodes each slide once, scaled to the slide region
type SlideCache struct {
	size        image.Point
	placeholder image.Image
	slides      map[string]*image.RGBA
	metrics     *metrics.Metrics
}

// NewSlideCache creates a cache for a slide region of the given size. A
// slide that cannot be loaded is replaced by placeholder.
func NewSlideCache(size image.Point, placeholder image.Image, m *metrics.Metrics) *SlideCache {
	return &SlideCache{
		size:        size,
		placeholder: placeholder,
		slides:      make(map[string]*image.RGBA),
		metrics:     m,
	}
}

// Get returns the scaled slide for path, loading it on first use
func (c *SlideCache) Get(path string) *image.RGBA {
	if img, ok := c.slides[path]; ok {
		return img
	}

	logger.Info("Slides", "Loading %s", path)
	src, err := LoadImage(path)
	if err != nil {
		logger.Error("Slides", "Slide file not found [%s]: %v", path, err)
		if c.metrics != nil {
			c.metrics.SlideLoadFailures.Add(1)
		}
		src = c.placeholder
	} else if c.metrics != nil {
		c.metrics.SlidesLoaded.Add(1)
	}

	var img *image.RGBA
	if src == nil {
		img = render.NewCanvas(c.size.X, c.size.Y)
	} else {
		img = render.Resize(src, c.size.X, c.size.Y)
	}
	c.slides[path] = img
	return img
}

// Len returns the number of cached slides
func (c *SlideCache) Len() int {
	return len(c.slides)
}
