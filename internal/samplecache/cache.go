// Package samplecache stores prediction sample sets in SQLite, keyed by boundary and
// request parameters, so repeated renders of the same field skip the prediction service.
package samplecache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/fieldmap/internal/geo"
	"github.com/sells-group/fieldmap/internal/raster"
	"github.com/sells-group/fieldmap/pkg/prediction"
)

// DefaultTTL is how long an entry stays valid when no TTL is configured.
const DefaultTTL = 24 * time.Hour

// Cache is a SQLite-backed sample-set cache.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// Open opens (or creates) the cache database at dsn and configures WAL mode.
// A ttl <= 0 uses DefaultTTL.
func Open(dsn string, ttl time.Duration) (*Cache, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "samplecache: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "samplecache: exec %s", pragma)
		}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{db: db, ttl: ttl, now: time.Now}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS sample_cache (
	key        TEXT PRIMARY KEY,
	samples    TEXT NOT NULL,
	points     INTEGER NOT NULL,
	cached_at  INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sample_cache_expires_at ON sample_cache(expires_at);
`

// Migrate creates the cache table.
func (c *Cache) Migrate(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "samplecache: migrate")
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Key returns the SHA-256 hex digest of the ring coordinates and the defaulted params.
// Coordinates are rounded to 1e-7 degrees.
func Key(ring geo.Ring, params prediction.Params) string {
	var b strings.Builder
	for _, p := range ring {
		fmt.Fprintf(&b, "%.7f,%.7f;", p.Lon, p.Lat)
	}
	p := params.WithDefaults()
	fmt.Fprintf(&b, "|%s|%s|%s|%g|%g|%s|%s",
		p.ProjectID, p.DateStart, p.DateEnd, p.CellSizeMeters, p.MaxCloudPct,
		strings.ToUpper(p.RedEdgeBand), strings.ToLower(p.Composite))
	h := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", h)
}

// Get returns the cached sample set for key, or nil when missing or expired.
func (c *Cache) Get(ctx context.Context, key string) (*raster.SampleSet, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT samples FROM sample_cache WHERE key = ? AND expires_at > ?`,
		key, c.now().UnixNano(),
	)

	var data string
	err := row.Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "samplecache: get")
	}

	var s raster.SampleSet
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, eris.Wrap(err, "samplecache: unmarshal samples")
	}
	if err := s.Validate(); err != nil {
		return nil, eris.Wrap(err, "samplecache: cached samples")
	}

	zap.L().Debug("samplecache: hit", zap.String("key", short(key)), zap.Int("points", s.Len()))
	return &s, nil
}

// Put stores s under key, replacing any previous entry. Malformed sets are rejected.
func (c *Cache) Put(ctx context.Context, key string, s *raster.SampleSet) error {
	if s == nil {
		return eris.New("samplecache: nil sample set")
	}
	if err := s.Validate(); err != nil {
		return eris.Wrap(err, "samplecache: put")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return eris.Wrap(err, "samplecache: marshal samples")
	}

	now := c.now()
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO sample_cache (key, samples, points, cached_at, expires_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET
			samples = excluded.samples,
			points = excluded.points,
			cached_at = excluded.cached_at,
			expires_at = excluded.expires_at`,
		key, string(data), s.Len(), now.UnixNano(), now.Add(c.ttl).UnixNano(),
	)
	return eris.Wrap(err, "samplecache: put")
}

// DeleteExpired removes expired entries and returns how many were dropped.
func (c *Cache) DeleteExpired(ctx context.Context) (int, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM sample_cache WHERE expires_at <= ?`, c.now().UnixNano(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "samplecache: delete expired")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "samplecache: rows affected")
}

func short(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
