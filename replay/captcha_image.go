package replay

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ImageRenderer draws the text as a noisy PNG and returns it as a
// data:image/png;base64 URI.
type ImageRenderer struct {
	Width  int
	Height int
}

// NewImageRenderer returns a renderer of the stock 200x70 size.
func NewImageRenderer() ImageRenderer {
	return ImageRenderer{Width: 200, Height: 70}
}

const (
	glyphAdvance = 7
	glyphHeight  = 13
	glyphGap     = 4
)

// Render draws text over noise and returns a PNG data URI.
func (r ImageRenderer) Render(text string) (string, error) {
	w, h := r.Width, r.Height
	if w <= 0 || h <= 0 {
		w, h = 200, 70
	}

	// Glyphs go onto a small canvas that is scaled up, so the bitmap font
	// reads at captcha size.
	sw := len(text)*(glyphAdvance+glyphGap) + glyphGap
	sh := glyphHeight + 8
	small := image.NewRGBA(image.Rect(0, 0, sw, sh))
	xdraw.Draw(small, small.Bounds(), image.NewUniform(color.White), image.Point{}, xdraw.Src)

	for i, ch := range text {
		d := &font.Drawer{
			Dst:  small,
			Src:  image.NewUniform(darkColor()),
			Face: basicfont.Face7x13,
			Dot: fixed.P(
				glyphGap+i*(glyphAdvance+glyphGap)+rand.IntN(3)-1,
				glyphHeight+rand.IntN(6),
			),
		}
		d.DrawString(string(ch))
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.NearestNeighbor.Scale(img, img.Bounds(), small, small.Bounds(), xdraw.Src, nil)

	for n := 5 + rand.IntN(4); n > 0; n-- {
		drawLine(img, rand.IntN(w), rand.IntN(h), rand.IntN(w), rand.IntN(h), lightColor())
	}
	for n := 20 + rand.IntN(21); n > 0; n-- {
		img.Set(rand.IntN(w), rand.IntN(h), lightColor())
	}
	for n := 2 + rand.IntN(3); n > 0; n-- {
		drawLine(img, rand.IntN(w), rand.IntN(h), rand.IntN(w), rand.IntN(h), midColor())
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func darkColor() color.RGBA {
	return color.RGBA{R: uint8(rand.IntN(101)), G: uint8(rand.IntN(101)), B: uint8(rand.IntN(101)), A: 255}
}

func midColor() color.RGBA {
	return color.RGBA{R: uint8(100 + rand.IntN(51)), G: uint8(100 + rand.IntN(51)), B: uint8(100 + rand.IntN(51)), A: 255}
}

func lightColor() color.RGBA {
	return color.RGBA{R: uint8(180 + rand.IntN(41)), G: uint8(180 + rand.IntN(41)), B: uint8(180 + rand.IntN(41)), A: 255}
}

// drawLine is Bresenham's algorithm.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		img.SetRGBA(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
