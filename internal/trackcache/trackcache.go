/*
	Timelinize
	Copyright (c) 2013 Matthew Holt

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package trackcache caches parsed track files in a sqlite database so
// that re-running on the same export skips XML decoding.
package trackcache

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3" // register the sqlite3 driver
	"github.com/mholt/archives"
	"github.com/timelinize/trackmap/trackmap"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

//go:embed schema.sql
var createDB string

// Cache is a sqlite database of parsed tracks. Tracks are keyed by the
// content of their file, not by activity, so the same file found in
// two exports is parsed once.
type Cache struct {
	db *sql.DB

	// sqlite allows only one writer at a time; serialize our writes
	// instead of hitting "database is locked"
	dbMu sync.Mutex

	logger *zap.Logger

	hits, misses atomic.Int64
}

// Open opens or creates the cache database at dbPath.
func Open(ctx context.Context, dbPath string, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	if _, err := db.ExecContext(ctx, createDB); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up cache database: %w", err)
	}

	var version string
	if err := db.QueryRowContext(ctx, "SELECT sqlite_version() AS version").Scan(&version); err == nil {
		logger.Debug("using sqlite", zap.String("version", version), zap.String("path", dbPath))
	}

	return &Cache{db: db, logger: logger}, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	c.logger.Info("track cache statistics",
		zap.Int64("hits", c.hits.Load()),
		zap.Int64("misses", c.misses.Load()))
	return c.db.Close()
}

// Stats returns the number of cache hits and misses so far.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Wrap returns a reader that serves tracks of files in fsys from the
// cache and falls back to next on a miss, caching its result. Failed
// parses are not cached.
func (c *Cache) Wrap(fsys fs.FS, next trackmap.TrackFileReader) trackmap.TrackFileReader {
	return &reader{cache: c, fsys: fsys, next: next}
}

type reader struct {
	cache *Cache
	fsys  fs.FS
	next  trackmap.TrackFileReader
}

func (r *reader) ParseOne(ctx context.Context, act trackmap.ActivityDescriptor) ([]trackmap.Point, error) {
	hash, err := hashFile(r.fsys, act.SourceFile)
	if err != nil {
		// let the wrapped reader report the problem in its own terms
		return r.next.ParseOne(ctx, act)
	}

	points, found, err := r.cache.load(ctx, hash, act.ID)
	if err != nil {
		r.cache.logger.Warn("reading track from cache",
			zap.Int("activity_id", act.ID),
			zap.String("file", act.SourceFile),
			zap.Error(err))
	} else if found {
		r.cache.hits.Add(1)
		return points, nil
	}
	r.cache.misses.Add(1)

	points, err = r.next.ParseOne(ctx, act)
	if err != nil {
		return nil, err
	}
	if err := r.cache.store(ctx, hash, act.SourceFile, points); err != nil {
		r.cache.logger.Warn("caching track",
			zap.Int("activity_id", act.ID),
			zap.String("file", act.SourceFile),
			zap.Error(err))
	}
	return points, nil
}

func hashFile(fsys fs.FS, filename string) ([]byte, error) {
	f, err := archives.TopDirOpen(fsys, filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// load returns the cached points of the track with the given hash,
// assigned to activityID.
func (c *Cache) load(ctx context.Context, hash []byte, activityID int) ([]trackmap.Point, bool, error) {
	var count int
	err := c.db.QueryRowContext(ctx, `SELECT points FROM tracks WHERE hash=? LIMIT 1`, hash).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT latitude, longitude, elevation FROM track_points WHERE hash=? ORDER BY seq`, hash)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	points := make([]trackmap.Point, 0, count)
	for rows.Next() {
		var lat, lon, ele float64
		if err := rows.Scan(&lat, &lon, &ele); err != nil {
			return nil, false, err
		}
		p, err := trackmap.NewPoint(lat, lon, ele, activityID)
		if err != nil {
			return nil, false, err
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if len(points) != count {
		return nil, false, fmt.Errorf("cached track has %d points, expected %d", len(points), count)
	}
	return points, true, nil
}

func (c *Cache) store(ctx context.Context, hash []byte, sourceFile string, points []trackmap.Point) error {
	c.dbMu.Lock()
	defer c.dbMu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tracks WHERE hash=?`, hash); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tracks (hash, points, source_file, cached) VALUES (?, ?, ?, ?)`,
		hash, len(points), sourceFile, time.Now().Unix()); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO track_points (hash, seq, latitude, longitude, elevation) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, p := range points {
		if _, err := stmt.ExecContext(ctx, hash, i, p.Latitude, p.Longitude, p.Elevation); err != nil {
			return fmt.Errorf("inserting point %d: %w", i, err)
		}
	}

	return tx.Commit()
}
