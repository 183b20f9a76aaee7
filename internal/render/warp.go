package render

import (
	"errors"
	"image"
	"math"
)

// ErrSingularMatrix is returned for a homography that cannot be inverted
var ErrSingularMatrix = errors.New("singular perspective matrix")

// Matrix is a 3x3 homography mapping source pixels to destination pixels
type Matrix [3][3]float64

// Identity returns the identity homography
func Identity() Matrix {
	return Matrix{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// Invert returns the inverse homography
func (m Matrix) Invert() (Matrix, error) {
	a, b, c := m[0][0], m[0][1], m[0][2]
	d, e, f := m[1][0], m[1][1], m[1][2]
	g, h, i := m[2][0], m[2][1], m[2][2]

	det := a*(e*i-f*h) - b*(d*i-f*g) + c*(d*h-e*g)
	if math.Abs(det) < 1e-12 {
		return Matrix{}, ErrSingularMatrix
	}
	inv := Matrix{
		{e*i - f*h, c*h - b*i, b*f - c*e},
		{f*g - d*i, a*i - c*g, c*d - a*f},
		{d*h - e*g, b*g - a*h, a*e - b*d},
	}
	for r := range inv {
		for k := range inv[r] {
			inv[r][k] /= det
		}
	}
	return inv, nil
}

// Translate returns the homography shifting by (dx, dy)
func Translate(dx, dy float64) Matrix {
	return Matrix{{1, 0, dx}, {0, 1, dy}, {0, 0, 1}}
}

// Mul returns m·n, which applies n first
func (m Matrix) Mul(n Matrix) Matrix {
	var out Matrix
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			for k := 0; k < 3; k++ {
				out[r][c] += m[r][k] * n[k][c]
			}
		}
	}
	return out
}

// Apply maps (x, y) through the homography
func (m Matrix) Apply(x, y float64) (float64, float64, bool) {
	w := m[2][0]*x + m[2][1]*y + m[2][2]
	if w == 0 {
		return 0, 0, false
	}
	return (m[0][0]*x + m[0][1]*y + m[0][2]) / w, (m[1][0]*x + m[1][1]*y + m[1][2]) / w, true
}

// WarpPerspective renders src through m into a w x h image. Destination
// pixels that map outside src are black.
func WarpPerspective(src *image.RGBA, m Matrix, w, h int) (*image.RGBA, error) {
	inv, err := m.Invert()
	if err != nil {
		return nil, err
	}
	dst := NewCanvas(w, h)
	sb := src.Bounds()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx, sy, ok := inv.Apply(float64(x), float64(y))
			if !ok {
				continue
			}
			sampleBilinear(src, sb, sx+float64(sb.Min.X), sy+float64(sb.Min.Y), dst.Pix[dst.PixOffset(x, y):])
		}
	}
	return dst, nil
}

// sampleBilinear writes the interpolated pixel at (fx, fy) into out[0:4].
// Samples outside the image leave out unchanged.
func sampleBilinear(src *image.RGBA, b image.Rectangle, fx, fy float64, out []uint8) {
	if fx < float64(b.Min.X) || fy < float64(b.Min.Y) || fx > float64(b.Max.X-1) || fy > float64(b.Max.Y-1) {
		return
	}
	x0, y0 := int(fx), int(fy)
	x1, y1 := x0+1, y0+1
	if x1 >= b.Max.X {
		x1 = x0
	}
	if y1 >= b.Max.Y {
		y1 = y0
	}
	ax, ay := fx-float64(x0), fy-float64(y0)

	p00 := src.PixOffset(x0, y0)
	p10 := src.PixOffset(x1, y0)
	p01 := src.PixOffset(x0, y1)
	p11 := src.PixOffset(x1, y1)
	for c := 0; c < 4; c++ {
		top := float64(src.Pix[p00+c])*(1-ax) + float64(src.Pix[p10+c])*ax
		bot := float64(src.Pix[p01+c])*(1-ax) + float64(src.Pix[p11+c])*ax
		out[c] = uint8(top*(1-ay) + bot*ay + 0.5)
	}
}

// Pad centres frame in a black canvas twice its size
func Pad(frame *image.RGBA) *image.RGBA {
	b := frame.Bounds()
	out := NewCanvas(2*b.Dx(), 2*b.Dy())
	off := image.Pt(b.Dx()/2, b.Dy()/2)
	Place(out, image.Rectangle{Min: off, Max: off.Add(b.Size())}, frame)
	return out
}

// CorrectPerspective warps frame through m back to its own size. m is in
// frame coordinates, so the identity leaves the frame unchanged. The frame is
// padded first and the pad offset removed before m applies.
func CorrectPerspective(frame *image.RGBA, m Matrix) (*image.RGBA, error) {
	b := frame.Bounds()
	off := image.Pt(b.Dx()/2, b.Dy()/2)
	return WarpPerspective(Pad(frame), m.Mul(Translate(-float64(off.X), -float64(off.Y))), b.Dx(), b.Dy())
}
