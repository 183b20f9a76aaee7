package render

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// AlphaMask turns a greyscale mask image into an alpha channel: white is
// opaque and black is transparent.
func AlphaMask(mask image.Image) *image.Alpha {
	b := mask.Bounds()
	out := image.NewAlpha(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(mask.At(x, y)).(color.Gray)
			out.SetAlpha(x-b.Min.X, y-b.Min.Y, color.Alpha{A: g.Y})
		}
	}
	return out
}

// DrawMasked composites img at pt through mask. A nil mask falls back to
// the image's own alpha.
func DrawMasked(dst *image.RGBA, pt image.Point, img image.Image, mask image.Image) {
	b := img.Bounds()
	r := image.Rectangle{Min: pt, Max: pt.Add(b.Size())}
	if mask == nil {
		xdraw.Draw(dst, r, img, b.Min, xdraw.Over)
		return
	}
	xdraw.DrawMask(dst, r, img, b.Min, mask, mask.Bounds().Min, xdraw.Over)
}

// TopRight returns the origin that puts an image of size sz flush with the
// top-right corner of bounds
func TopRight(bounds image.Rectangle, sz image.Point) image.Point {
	return image.Pt(bounds.Max.X-sz.X, bounds.Min.Y)
}
