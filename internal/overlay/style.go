// Package overlay maps zones and normalized values to styles and draws them on a map surface.
package overlay

import (
	"fmt"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/rotisserie/eris"

	"github.com/sells-group/fieldmap/internal/zone"
)

// Color is an opaque RGB colour.
type Color struct {
	R, G, B uint8
}

// Hex returns the #rrggbb form.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// CSS returns the rgba() form with the given opacity.
func (c Color) CSS(opacity float64) string {
	return fmt.Sprintf("rgba(%d, %d, %d, %.2f)", c.R, c.G, c.B, opacity)
}

// NRGBA returns the colour with opacity as alpha.
func (c Color) NRGBA(opacity float64) color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: alpha(opacity)}
}

func (c Color) colorful() colorful.Color {
	return colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
}

func fromColorful(c colorful.Color) Color {
	r, g, b := c.Clamped().RGB255()
	return Color{R: r, G: g, B: b}
}

// CellStyle is the fill and optional stroke of a drawn shape. It is comparable.
type CellStyle struct {
	FillColor     Color   `json:"-"`
	FillOpacity   float64 `json:"fill_opacity"`
	Stroke        bool    `json:"stroke"`
	StrokeColor   Color   `json:"-"`
	StrokeWeight  float64 `json:"stroke_weight"`
	StrokeOpacity float64 `json:"stroke_opacity"`
}

// Zone palette.
var (
	okFill      = Color{34, 197, 94}
	observeFill = Color{250, 204, 21}
	treatFill   = Color{249, 115, 22}
	urgentFill  = Color{239, 68, 68}
	urgentLine  = Color{220, 38, 38}
)

// StyleFor returns the style of a zone class. Only Urgent draws a stroke.
func StyleFor(c zone.Class) CellStyle {
	switch c {
	case zone.OK:
		return CellStyle{FillColor: okFill, FillOpacity: 0.10}
	case zone.Observe:
		return CellStyle{FillColor: observeFill, FillOpacity: 0.18}
	case zone.Treat:
		return CellStyle{FillColor: treatFill, FillOpacity: 0.24}
	default:
		return CellStyle{
			FillColor:     urgentFill,
			FillOpacity:   0.32,
			Stroke:        true,
			StrokeColor:   urgentLine,
			StrokeWeight:  1.2,
			StrokeOpacity: 0.60,
		}
	}
}

// BoundaryStyle is the field outline.
func BoundaryStyle() CellStyle {
	return CellStyle{
		FillColor:     Color{43, 141, 53},
		FillOpacity:   0.08,
		Stroke:        true,
		StrokeColor:   Color{102, 215, 113},
		StrokeWeight:  3,
		StrokeOpacity: 0.85,
	}
}

// Channel selects the continuous palette.
type Channel string

// Channels.
const (
	Vegetation Channel = "vegetation"
	Fertilizer Channel = "fertilizer"
)

// ParseChannel validates a channel name. Empty selects Vegetation.
func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case "", Vegetation:
		return Vegetation, nil
	case Fertilizer:
		return Fertilizer, nil
	}
	return "", eris.Errorf("overlay: unknown channel %q", s)
}

// ramp is a piecewise-linear colour ramp with opacity rising from minOpacity to maxOpacity.
type ramp struct {
	stops      []colorful.Color
	minOpacity float64
	maxOpacity float64
}

func newRamp(minOpacity, maxOpacity float64, stops ...Color) ramp {
	r := ramp{minOpacity: minOpacity, maxOpacity: maxOpacity}
	for _, s := range stops {
		r.stops = append(r.stops, s.colorful())
	}
	return r
}

var ramps = map[Channel]ramp{
	Vegetation: newRamp(0.05, 0.65, okFill, observeFill, urgentFill),
	Fertilizer: newRamp(0.15, 0.80,
		Color{0x90, 0xee, 0x90}, Color{0xff, 0xd7, 0x00}, Color{0xff, 0xa5, 0x00}, Color{0xff, 0x6b, 0x6b}),
}

func (r ramp) at(t float64) (Color, float64) {
	if math.IsNaN(t) {
		t = 0
	}
	t = math.Max(0, math.Min(1, t))
	seg := t * float64(len(r.stops)-1)
	i := int(math.Floor(seg))
	if i >= len(r.stops)-1 {
		i = len(r.stops) - 2
	}
	c := r.stops[i].BlendRgb(r.stops[i+1], seg-float64(i))
	return fromColorful(c), r.minOpacity + (r.maxOpacity-r.minOpacity)*t
}

// StyleForContinuous maps t ∈ [0, 1] along a green, yellow, red ramp. Opacity rises with t
// so low-need cells are nearly invisible. Unknown channels use Vegetation.
func StyleForContinuous(t float64, ch Channel) CellStyle {
	r, ok := ramps[ch]
	if !ok {
		r = ramps[Vegetation]
	}
	c, opacity := r.at(t)
	return CellStyle{FillColor: c, FillOpacity: opacity}
}

func alpha(opacity float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, opacity)) * 255))
}
