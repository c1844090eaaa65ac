package overlay

import (
	"github.com/sells-group/fieldmap/internal/geo"
	"github.com/sells-group/fieldmap/internal/raster"
)

// Layer names a group of primitives that is cleared and redrawn together.
type Layer string

// Layers.
const (
	LayerBoundary Layer = "boundary"
	LayerCells    Layer = "cells"
	LayerRaster   Layer = "raster"
)

// Polygon is a styled closed ring.
type Polygon struct {
	Layer      Layer
	Ring       geo.Ring
	Style      CellStyle
	Properties map[string]any
}

// ImageOverlay places a rendered canvas over its bounds.
type ImageOverlay struct {
	Layer   Layer
	Canvas  *raster.Canvas
	Opacity float64
}

// MapSurface is the drawing capability of a map widget. Implementations belong to a single
// map view.
type MapSurface interface {
	// InvalidateSize re-measures the widget after its container changed size.
	InvalidateSize()
	// FitBounds frames b with the given padding in pixels.
	FitBounds(b geo.Bounds, paddingPx int)
	DrawPolygon(p Polygon)
	DrawImage(img ImageOverlay)
	// Clear removes every primitive of layer.
	Clear(layer Layer)
}
