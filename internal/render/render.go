// Package render holds the raster helpers the compositor draws with:
// scaling into placement rectangles, bitmap text, masked overlays and
// perspective correction.
package render

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

var (
	Black = color.RGBA{A: 255}
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Red   = color.RGBA{R: 255, A: 255}
)

// NewCanvas returns an opaque black image of the given size
func NewCanvas(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	Fill(img, img.Bounds(), Black)
	return img
}

// Fill paints r in dst with a solid colour
func Fill(dst *image.RGBA, r image.Rectangle, c color.Color) {
	xdraw.Draw(dst, r, image.NewUniform(c), image.Point{}, xdraw.Src)
}

// Resize scales src to exactly w x h
func Resize(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	b := src.Bounds()
	if b.Dx() == w && b.Dy() == h {
		xdraw.Draw(dst, dst.Bounds(), src, b.Min, xdraw.Src)
		return dst
	}
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}

// Place copies src into r of dst, scaling when the sizes differ
func Place(dst *image.RGBA, r image.Rectangle, src image.Image) {
	b := src.Bounds()
	if b.Dx() == r.Dx() && b.Dy() == r.Dy() {
		xdraw.Draw(dst, r, src, b.Min, xdraw.Src)
		return
	}
	xdraw.BiLinear.Scale(dst, r, src, b, xdraw.Src, nil)
}

// Clone returns a copy of img
func Clone(img *image.RGBA) *image.RGBA {
	out := image.NewRGBA(img.Bounds())
	copy(out.Pix, img.Pix)
	return out
}
