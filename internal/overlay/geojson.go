package overlay

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/fieldmap/internal/geo"
)

// FeatureCollector is a MapSurface that records primitives as GeoJSON features, for web
// map clients that draw the overlay themselves. Styles are exported as simplestyle
// properties.
type FeatureCollector struct {
	mu      sync.Mutex
	layers  map[Layer][]*geojson.Feature
	order   []Layer
	view    geo.Bounds
	padding int
	resizes int
	nextID  int
	images  []ImageOverlay
}

// NewFeatureCollector returns an empty collector.
func NewFeatureCollector() *FeatureCollector {
	return &FeatureCollector{layers: make(map[Layer][]*geojson.Feature)}
}

// InvalidateSize records a resize request.
func (fc *FeatureCollector) InvalidateSize() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.resizes++
}

// FitBounds records the requested view.
func (fc *FeatureCollector) FitBounds(b geo.Bounds, paddingPx int) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.view = b
	fc.padding = paddingPx
}

// Resizes returns how many times InvalidateSize was called.
func (fc *FeatureCollector) Resizes() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.resizes
}

// View returns the last requested view and padding.
func (fc *FeatureCollector) View() (geo.Bounds, int) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.view, fc.padding
}

// DrawPolygon appends a polygon feature to its layer. Rings that cannot be encoded are
// skipped.
func (fc *FeatureCollector) DrawPolygon(p Polygon) {
	poly, err := p.Ring.Polygon()
	if err != nil {
		return
	}
	props := styleProperties(p.Style)
	props["layer"] = string(p.Layer)
	for k, v := range p.Properties {
		props[k] = v
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.add(p.Layer, poly, props)
}

// DrawImage records the overlay and adds its footprint as a feature.
func (fc *FeatureCollector) DrawImage(img ImageOverlay) {
	if img.Canvas == nil {
		return
	}
	poly, err := img.Canvas.Bounds.Ring().Polygon()
	if err != nil {
		return
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.images = append(fc.images, img)
	fc.add(img.Layer, poly, map[string]any{
		"layer":   string(img.Layer),
		"image":   true,
		"width":   img.Canvas.Width,
		"height":  img.Canvas.Height,
		"opacity": img.Opacity,
	})
}

// Images returns the recorded image overlays.
func (fc *FeatureCollector) Images() []ImageOverlay {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return append([]ImageOverlay(nil), fc.images...)
}

// Clear drops a layer.
func (fc *FeatureCollector) Clear(layer Layer) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	delete(fc.layers, layer)
	kept := fc.images[:0]
	for _, img := range fc.images {
		if img.Layer != layer {
			kept = append(kept, img)
		}
	}
	fc.images = kept
}

// Len returns the number of features in layer.
func (fc *FeatureCollector) Len(layer Layer) int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return len(fc.layers[layer])
}

func (fc *FeatureCollector) add(layer Layer, g geom.T, props map[string]any) {
	if _, ok := fc.layers[layer]; !ok {
		fc.order = appendOnce(fc.order, layer)
	}
	fc.nextID++
	fc.layers[layer] = append(fc.layers[layer], &geojson.Feature{
		ID:         fmt.Sprintf("%s-%d", layer, fc.nextID),
		Geometry:   g,
		Properties: props,
	})
}

// FeatureCollection returns every feature, layers in first-drawn order.
func (fc *FeatureCollector) FeatureCollection() *geojson.FeatureCollection {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	out := &geojson.FeatureCollection{Features: []*geojson.Feature{}}
	for _, l := range fc.order {
		out.Features = append(out.Features, fc.layers[l]...)
	}
	return out
}

// MarshalJSON encodes the collection.
func (fc *FeatureCollector) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(fc.FeatureCollection())
	if err != nil {
		return nil, eris.Wrap(err, "overlay: encode feature collection")
	}
	return data, nil
}

func styleProperties(s CellStyle) map[string]any {
	props := map[string]any{
		"fill":         s.FillColor.Hex(),
		"fill-opacity": s.FillOpacity,
		"stroke-width": 0.0,
	}
	if s.Stroke {
		props["stroke"] = s.StrokeColor.Hex()
		props["stroke-width"] = s.StrokeWeight
		props["stroke-opacity"] = s.StrokeOpacity
	}
	return props
}

func appendOnce(layers []Layer, l Layer) []Layer {
	for _, x := range layers {
		if x == l {
			return layers
		}
	}
	return append(layers, l)
}
