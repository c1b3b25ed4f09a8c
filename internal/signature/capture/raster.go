package capture

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

const (
	defaultCanvasWidth  = 400
	defaultCanvasHeight = 150
)

// Point is a canvas coordinate. Origin is the top-left corner.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Stroke is one pointer-drag gesture: the ordered points visited while the
// pointer was down.
type Stroke []Point

// rasterize renders strokes onto a white canvas as black one-pixel lines and
// returns the PNG bytes. The stdlib PNG encoder is deterministic, which gives
// Commit its idempotency.
func rasterize(strokes []Stroke, width, height int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.White)
		}
	}

	for _, stroke := range strokes {
		if len(stroke) == 1 {
			setClamped(img, stroke[0].X, stroke[0].Y, width, height)
			continue
		}
		for i := 1; i < len(stroke); i++ {
			drawLine(img, stroke[i-1], stroke[i], width, height)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// drawLine plots a segment with Bresenham's algorithm.
func drawLine(img *image.RGBA, from, to Point, width, height int) {
	x0, y0, x1, y1 := from.X, from.Y, to.X, to.Y

	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx := 1
	if x0 > x1 {
		sx = -1
	}
	sy := 1
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy

	for {
		setClamped(img, x0, y0, width, height)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func setClamped(img *image.RGBA, x, y, width, height int) {
	if x < 0 || y < 0 || x >= width || y >= height {
		return
	}
	img.Set(x, y, color.Black)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
