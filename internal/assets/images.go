// Package assets loads the static inputs of a run: branding images, slide
// images, the heart-rate table and the perspective matrix. Everything here
// is built once at setup and read by the compositor afterwards.
package assets

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/reknow/combine-video/internal/render"
)

// LoadImage decodes a PNG, JPEG, BMP, TIFF or WebP file
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// Branding is the logo drawn on every canvas. It doubles as the slide
// placeholder.
type Branding struct {
	Logo image.Image
	Mask *image.Alpha // nil uses the logo's own alpha
}

// LoadBranding loads the logo and its optional greyscale mask. Both are
// required when named.
func LoadBranding(logoPath, maskPath string) (*Branding, error) {
	logo, err := LoadImage(logoPath)
	if err != nil {
		return nil, fmt.Errorf("branding logo: %w", err)
	}
	b := &Branding{Logo: logo}

	if maskPath != "" {
		mask, err := LoadImage(maskPath)
		if err != nil {
			return nil, fmt.Errorf("branding mask: %w", err)
		}
		if mask.Bounds().Size() != logo.Bounds().Size() {
			return nil, fmt.Errorf("branding mask %v does not match logo %v",
				mask.Bounds().Size(), logo.Bounds().Size())
		}
		b.Mask = render.AlphaMask(mask)
	}
	return b, nil
}

// Draw puts the logo into the top-right corner of dst
func (b *Branding) Draw(dst *image.RGBA) {
	pt := render.TopRight(dst.Bounds(), b.Logo.Bounds().Size())
	if b.Mask == nil {
		render.DrawMasked(dst, pt, b.Logo, nil)
		return
	}
	render.DrawMasked(dst, pt, b.Logo, b.Mask)
}
