package render

import (
	"image"
	"image/color"
	"strconv"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var face = basicfont.Face7x13

// TextSize returns the pixel size of s at the given integer scale
func TextSize(s string, scale int) image.Point {
	if scale < 1 {
		scale = 1
	}
	w := font.MeasureString(face, s).Ceil()
	return image.Pt(w*scale, face.Height*scale)
}

// DrawText draws s with its baseline at (x, baseline). Scales above 1
// enlarge the 7x13 bitmap face with nearest-neighbour sampling.
func DrawText(dst *image.RGBA, s string, x, baseline int, c color.Color, scale int) {
	if s == "" {
		return
	}
	if scale <= 1 {
		d := &font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(c),
			Face: face,
			Dot:  fixed.P(x, baseline),
		}
		d.DrawString(s)
		return
	}

	size := TextSize(s, 1)
	tmp := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	d := &font.Drawer{
		Dst:  tmp,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(s)

	top := baseline - face.Ascent*scale
	r := image.Rect(x, top, x+size.X*scale, top+size.Y*scale)
	xdraw.NearestNeighbor.Scale(dst, r, tmp, tmp.Bounds(), xdraw.Over, nil)
}

// DrawCentered draws s horizontally centred in dst with its baseline at y
func DrawCentered(dst *image.RGBA, s string, y int, c color.Color, scale int) {
	size := TextSize(s, scale)
	b := dst.Bounds()
	DrawText(dst, s, b.Min.X+(b.Dx()-size.X)/2, y, c, scale)
}

// Label draws white text on a black box spanning box
func Label(dst *image.RGBA, box image.Rectangle, s string, x, baseline int) {
	Fill(dst, box, Black)
	DrawText(dst, s, x, baseline, White, 1)
}

// FrameCounter burns the source frame index into the bottom-left corner
func FrameCounter(dst *image.RGBA, frame int) {
	b := dst.Bounds()
	box := image.Rect(b.Min.X+2, b.Max.Y-22, b.Min.X+100, b.Max.Y-8)
	Label(dst, box, strconv.Itoa(frame), b.Min.X+10, b.Max.Y-10)
}

// Clock draws a date/time string into the bottom-right corner
func Clock(dst *image.RGBA, s string) {
	b := dst.Bounds()
	box := image.Rect(b.Max.X-260, b.Max.Y-22, b.Max.X-10, b.Max.Y-8)
	Label(dst, box, s, b.Max.X-250, b.Max.Y-10)
}

// HeartRate draws a rounded reading in large red digits above the clock
func HeartRate(dst *image.RGBA, bpm float64) {
	b := dst.Bounds()
	s := strconv.Itoa(int(bpm + 0.5))
	DrawText(dst, s, b.Max.X-150, b.Max.Y-50, Red, 5)
}

// Banner draws a notice centred on a black strip across the top of dst
func Banner(dst *image.RGBA, s string) {
	b := dst.Bounds()
	size := TextSize(s, 2)
	Fill(dst, image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+size.Y+20), Black)
	DrawCentered(dst, s, b.Min.Y+10+face.Ascent*2, White, 2)
}
