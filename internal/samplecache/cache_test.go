package samplecache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fieldmap/internal/geo"
	"github.com/sells-group/fieldmap/internal/raster"
	"github.com/sells-group/fieldmap/pkg/prediction"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "samples.db"), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() }) //nolint:errcheck
	require.NoError(t, c.Migrate(context.Background()))
	return c
}

func ring() geo.Ring {
	return geo.Ring{
		geo.LatLng(55.0, 37.0),
		geo.LatLng(55.0, 37.01),
		geo.LatLng(55.01, 37.01),
		geo.LatLng(55.0, 37.0),
	}
}

func samples() *raster.SampleSet {
	return &raster.SampleSet{
		Lon:            []float64{37.002, 37.008},
		Lat:            []float64{55.002, 55.004},
		Pred:           []float64{0.25, 0.75},
		CellSizeMeters: 4,
	}
}

func TestKey(t *testing.T) {
	k := Key(ring(), prediction.Params{})
	assert.Len(t, k, 64)
	assert.Equal(t, k, Key(ring(), prediction.DefaultParams()))

	p := prediction.DefaultParams()
	p.RedEdgeBand = "b5"
	assert.Equal(t, k, Key(ring(), p))

	p.RedEdgeBand = "B6"
	assert.NotEqual(t, k, Key(ring(), p))

	moved := ring()
	moved[1].Lon += 0.001
	assert.NotEqual(t, k, Key(moved, prediction.Params{}))
}

func TestCache_PutGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := Key(ring(), prediction.Params{})

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Put(ctx, key, samples()))
	got, err = c.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, samples().Pred, got.Pred)
	assert.Equal(t, 4.0, got.CellSizeMeters)

	replaced := samples()
	replaced.Pred = []float64{1, 2}
	require.NoError(t, c.Put(ctx, key, replaced))
	got, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, got.Pred)
}

func TestCache_Expiry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Put(ctx, "a", samples()))
	now = now.Add(2 * time.Hour)

	got, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := c.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCache_RejectsMalformed(t *testing.T) {
	c := newTestCache(t)
	bad := &raster.SampleSet{Lon: []float64{1, 2}, Lat: []float64{1, 2}, Pred: []float64{1}}

	err := c.Put(context.Background(), "bad", bad)
	var mse *raster.MalformedSampleSetError
	assert.ErrorAs(t, err, &mse)
	assert.Error(t, c.Put(context.Background(), "nil", nil))
}
