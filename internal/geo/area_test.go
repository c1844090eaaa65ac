package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fieldLatLng is the square field used across tests, in map-click (lat, lng) order.
var fieldLatLng = [][2]float64{
	{55.0, 37.0},
	{55.0, 37.01},
	{55.01, 37.01},
	{55.01, 37.0},
}

func testField() []LonLatPoint {
	pts := make([]LonLatPoint, len(fieldLatLng))
	for i, p := range fieldLatLng {
		pts[i] = LatLng(p[0], p[1])
	}
	return pts
}

func TestAreaHectares(t *testing.T) {
	tests := []struct {
		name     string
		points   []LonLatPoint
		expected float64
	}{
		{name: "empty", points: nil, expected: 0},
		{name: "single point", points: testField()[:1], expected: 0},
		{name: "two points", points: testField()[:2], expected: 0},
		{name: "square field at 55N", points: testField(), expected: 71.0696},
		{name: "closed ring matches open ring", points: Ring(testField()).Close(), expected: 71.0696},
		{
			name:     "equator square",
			points:   []LonLatPoint{{0, 0}, {0.01, 0}, {0.01, 0.01}, {0, 0.01}},
			expected: 123.9214,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, AreaHectares(tt.points), 0.001)
		})
	}
}

func TestAreaHectares_ReverseInvariant(t *testing.T) {
	rings := []Ring{
		Ring(testField()),
		{{37.61556, 55.75222}, {37.61800, 55.75280}, {37.62010, 55.75110}, {37.61720, 55.75050}},
		{{42.1, 45.9}, {42.12, 45.905}, {42.115, 45.92}, {42.09, 45.91}, {42.095, 45.902}},
	}
	for _, r := range rings {
		assert.InEpsilon(t, AreaHectares(r), AreaHectares(r.Reverse()), 1e-6)
		assert.Greater(t, AreaHectares(r), 0.0)
	}
}

func TestAreaHectares_DegenerateIsFinite(t *testing.T) {
	line := []LonLatPoint{{37, 55}, {37.01, 55}, {37.02, 55}}
	a := AreaHectares(line)
	assert.False(t, math.IsNaN(a))
	assert.InDelta(t, 0, a, 1e-3)
}
