package raster

import (
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fieldmap/internal/geo"
)

// Canvas is an RGBA raster (non-premultiplied) georeferenced to Bounds. Row 0 is the
// northern edge, column 0 the western edge.
type Canvas struct {
	Width  int
	Height int
	Bounds geo.Bounds
	// Pix holds 4 bytes per pixel, rows top to bottom.
	Pix []uint8
}

// NewCanvas returns a fully transparent canvas.
func NewCanvas(width, height int, bounds geo.Bounds) (*Canvas, error) {
	if width <= 0 || height <= 0 {
		return nil, eris.Errorf("raster: invalid canvas size %dx%d", width, height)
	}
	if bounds.IsEmpty() {
		return nil, eris.New("raster: canvas bounds are empty")
	}
	return &Canvas{
		Width:  width,
		Height: height,
		Bounds: bounds,
		Pix:    make([]uint8, 4*width*height),
	}, nil
}

// PixelCenter returns the geographic position of the center of pixel (x, y).
func (c *Canvas) PixelCenter(x, y int) geo.LonLatPoint {
	dx := (c.Bounds.East - c.Bounds.West) / float64(c.Width)
	dy := (c.Bounds.North - c.Bounds.South) / float64(c.Height)
	return geo.LonLatPoint{
		Lon: c.Bounds.West + (float64(x)+0.5)*dx,
		Lat: c.Bounds.North - (float64(y)+0.5)*dy,
	}
}

// Set writes pixel (x, y).
func (c *Canvas) Set(x, y int, v color.NRGBA) {
	i := 4 * (y*c.Width + x)
	c.Pix[i], c.Pix[i+1], c.Pix[i+2], c.Pix[i+3] = v.R, v.G, v.B, v.A
}

// At reads pixel (x, y).
func (c *Canvas) At(x, y int) color.NRGBA {
	i := 4 * (y*c.Width + x)
	return color.NRGBA{R: c.Pix[i], G: c.Pix[i+1], B: c.Pix[i+2], A: c.Pix[i+3]}
}

// Image returns an image view sharing the canvas pixels.
func (c *Canvas) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    c.Pix,
		Stride: 4 * c.Width,
		Rect:   image.Rect(0, 0, c.Width, c.Height),
	}
}

// Opaque returns the number of pixels with non-zero alpha.
func (c *Canvas) Opaque() int {
	n := 0
	for i := 3; i < len(c.Pix); i += 4 {
		if c.Pix[i] != 0 {
			n++
		}
	}
	return n
}

// EncodePNG writes the canvas as PNG. The output is deterministic for identical pixels.
func (c *Canvas) EncodePNG(w io.Writer) error {
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(w, c.Image()); err != nil {
		return eris.Wrap(err, "raster: encode png")
	}
	return nil
}
