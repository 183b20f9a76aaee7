package render

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	Fill(img, img.Bounds(), c)
	return img
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func TestResize(t *testing.T) {
	src := solid(1920, 1080, color.RGBA{R: 10, G: 200, B: 30, A: 255})
	out := Resize(src, 640, 360)
	if out.Bounds() != image.Rect(0, 0, 640, 360) {
		t.Fatalf("bounds = %v", out.Bounds())
	}
	got := out.RGBAAt(320, 180)
	if absDiff(got.R, 10) > 1 || absDiff(got.G, 200) > 1 || absDiff(got.B, 30) > 1 {
		t.Fatalf("centre = %v", got)
	}
}

func TestPlace(t *testing.T) {
	canvas := NewCanvas(100, 50)
	Place(canvas, image.Rect(50, 0, 100, 50), solid(10, 10, White))
	if canvas.RGBAAt(75, 25).R < 250 || canvas.RGBAAt(25, 25) != Black {
		t.Fatal("placement outside target rectangle")
	}
}

func TestFrameCounterBox(t *testing.T) {
	cell := solid(640, 360, color.RGBA{R: 100, G: 100, B: 100, A: 255})
	FrameCounter(cell, 1234)

	// Box corner stays black, text pixels are white somewhere inside.
	if got := cell.RGBAAt(3, 360-9); got != Black {
		t.Fatalf("box corner = %v", got)
	}
	white := 0
	for y := 360 - 22; y < 360-8; y++ {
		for x := 2; x < 100; x++ {
			if cell.RGBAAt(x, y) == White {
				white++
			}
		}
	}
	if white == 0 {
		t.Fatal("no text drawn")
	}
	if cell.RGBAAt(320, 100) != (color.RGBA{R: 100, G: 100, B: 100, A: 255}) {
		t.Fatal("counter touched the middle of the frame")
	}
}

func TestDrawTextScaled(t *testing.T) {
	img := NewCanvas(200, 100)
	DrawText(img, "8", 10, 80, Red, 5)
	red := 0
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			if img.RGBAAt(x, y) == Red {
				red++
			}
		}
	}
	// A 7x13 glyph scaled five times has far more lit pixels than the unscaled one.
	if red < 100 {
		t.Fatalf("red pixels = %d", red)
	}
	if sz := TextSize("88", 5); sz != image.Pt(70, 65) {
		t.Fatalf("TextSize = %v", sz)
	}
}

func TestAlphaMaskAndDrawMasked(t *testing.T) {
	mask := image.NewGray(image.Rect(0, 0, 4, 1))
	mask.SetGray(0, 0, color.Gray{Y: 255})
	mask.SetGray(1, 0, color.Gray{Y: 0})
	alpha := AlphaMask(mask)
	if alpha.AlphaAt(0, 0).A != 255 || alpha.AlphaAt(1, 0).A != 0 {
		t.Fatal("alpha conversion")
	}

	dst := NewCanvas(10, 10)
	DrawMasked(dst, TopRight(dst.Bounds(), image.Pt(4, 1)), solid(4, 1, White), alpha)
	if dst.RGBAAt(6, 0) != White {
		t.Fatalf("opaque pixel = %v", dst.RGBAAt(6, 0))
	}
	if dst.RGBAAt(7, 0) != Black {
		t.Fatalf("transparent pixel = %v", dst.RGBAAt(7, 0))
	}
}

func TestMatrixInvert(t *testing.T) {
	m := Matrix{{2, 0, 5}, {0, 3, -4}, {0.001, 0, 1}}
	inv, err := m.Invert()
	if err != nil {
		t.Fatal(err)
	}
	x, y, _ := m.Apply(10, 20)
	bx, by, _ := inv.Apply(x, y)
	if math.Abs(bx-10) > 1e-9 || math.Abs(by-20) > 1e-9 {
		t.Fatalf("round trip = %v,%v", bx, by)
	}

	if _, err := (Matrix{}).Invert(); !errors.Is(err, ErrSingularMatrix) {
		t.Fatalf("singular err = %v", err)
	}
}

func TestCorrectPerspectiveTranslation(t *testing.T) {
	frame := solid(40, 20, White)
	m := Translate(10, 5)
	out, err := CorrectPerspective(frame, m)
	if err != nil {
		t.Fatal(err)
	}
	if out.Bounds().Size() != image.Pt(40, 20) {
		t.Fatalf("size = %v", out.Bounds())
	}
	if out.RGBAAt(5, 5) != Black || out.RGBAAt(15, 2) != Black {
		t.Fatalf("uncovered pixels = %v %v", out.RGBAAt(5, 5), out.RGBAAt(15, 2))
	}
	if out.RGBAAt(10, 5) != White || out.RGBAAt(39, 19) != White {
		t.Fatalf("shifted pixels = %v %v", out.RGBAAt(10, 5), out.RGBAAt(39, 19))
	}
}

func TestCorrectPerspectiveIdentityKeepsFrame(t *testing.T) {
	frame := solid(64, 36, White)
	out, err := CorrectPerspective(frame, Identity())
	if err != nil {
		t.Fatal(err)
	}
	white := 0
	for y := 0; y < 36; y++ {
		for x := 0; x < 64; x++ {
			if out.RGBAAt(x, y) == White {
				white++
			}
		}
	}
	if white != 64*36 {
		t.Fatalf("white pixels = %d, want %d", white, 64*36)
	}
}

func TestMatrixMul(t *testing.T) {
	m := Translate(3, 4).Mul(Translate(-3, -4))
	if m != Identity() {
		t.Fatalf("m = %v", m)
	}
	x, y, _ := Matrix{{2, 0, 0}, {0, 2, 0}, {0, 0, 1}}.Mul(Translate(1, 1)).Apply(0, 0)
	if x != 2 || y != 2 {
		t.Fatalf("scale after translate = %v,%v", x, y)
	}
}

func TestBanner(t *testing.T) {
	canvas := solid(640, 360, color.RGBA{R: 0, G: 0, B: 200, A: 255})
	Banner(canvas, "recording starts at 10:00")

	if got := canvas.RGBAAt(1, 1); got != (color.RGBA{A: 255}) {
		t.Fatalf("strip pixel = %v", got)
	}
	if got := canvas.RGBAAt(320, 200); got.B != 200 {
		t.Fatalf("pixel below strip changed: %v", got)
	}

	white := 0
	for y := 0; y < 46; y++ {
		for x := 0; x < 640; x++ {
			if canvas.RGBAAt(x, y) == (color.RGBA{R: 255, G: 255, B: 255, A: 255}) {
				white++
			}
		}
	}
	if white == 0 {
		t.Fatal("no text drawn in banner")
	}
}
