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

package trackcache

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"github.com/timelinize/trackmap/trackmap"
	"go.uber.org/zap/zaptest"
)

type countingReader struct {
	calls atomic.Int32
	fail  bool
}

func (cr *countingReader) ParseOne(_ context.Context, act trackmap.ActivityDescriptor) ([]trackmap.Point, error) {
	cr.calls.Add(1)
	if cr.fail {
		return nil, &trackmap.ParseError{ActivityID: act.ID, Path: act.SourceFile, Err: errors.New("bad track")}
	}
	return []trackmap.Point{
		{Latitude: 45.5, Longitude: -122.25, Elevation: 12.5, ActivityID: act.ID},
		{Latitude: 45.5001, Longitude: -122.2501, Elevation: 0, ActivityID: act.ID},
		{Latitude: -0.1, Longitude: 1e-7, Elevation: -3, ActivityID: act.ID},
	}, nil
}

func TestCacheHitAfterMiss(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "cache", "tracks.db")
	fsys := fstest.MapFS{
		"a.gpx":      {Data: []byte("track a")},
		"copy/a.gpx": {Data: []byte("track a")},
		"b.gpx":      {Data: []byte("track b")},
	}

	cache, err := Open(ctx, dbPath, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("opening cache: %v", err)
	}
	next := new(countingReader)
	reader := cache.Wrap(fsys, next)

	first, err := reader.ParseOne(ctx, trackmap.ActivityDescriptor{ID: 1, SourceFile: "a.gpx"})
	if err != nil {
		t.Fatal(err)
	}

	// same content under another name and activity
	second, err := reader.ParseOne(ctx, trackmap.ActivityDescriptor{ID: 2, SourceFile: "copy/a.gpx"})
	if err != nil {
		t.Fatal(err)
	}
	if next.calls.Load() != 1 {
		t.Errorf("expected 1 parse, got %d", next.calls.Load())
	}
	for i := range first {
		first[i].ActivityID = 2
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("cached points differ (-want +got):\n%s", diff)
	}

	if _, err := reader.ParseOne(ctx, trackmap.ActivityDescriptor{ID: 3, SourceFile: "b.gpx"}); err != nil {
		t.Fatal(err)
	}
	if hits, misses := cache.Stats(); hits != 1 || misses != 2 {
		t.Errorf("expected 1 hit and 2 misses, got %d and %d", hits, misses)
	}
	if err := cache.Close(); err != nil {
		t.Fatal(err)
	}

	// the cache survives reopening
	cache, err = Open(ctx, dbPath, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("reopening cache: %v", err)
	}
	defer cache.Close()
	next = new(countingReader)
	if _, err := cache.Wrap(fsys, next).ParseOne(ctx, trackmap.ActivityDescriptor{ID: 9, SourceFile: "b.gpx"}); err != nil {
		t.Fatal(err)
	}
	if next.calls.Load() != 0 {
		t.Errorf("expected no parse after reopening, got %d", next.calls.Load())
	}
}

func TestCacheSkipsFailures(t *testing.T) {
	ctx := context.Background()
	cache, err := Open(ctx, filepath.Join(t.TempDir(), "tracks.db"), zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	fsys := fstest.MapFS{"bad.gpx": {Data: []byte("<gpx")}}
	next := &countingReader{fail: true}
	reader := cache.Wrap(fsys, next)

	for range 2 {
		_, err := reader.ParseOne(ctx, trackmap.ActivityDescriptor{ID: 1, SourceFile: "bad.gpx"})
		var pe *trackmap.ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("expected *ParseError, got %v", err)
		}
	}
	if next.calls.Load() != 2 {
		t.Errorf("failed parse should not be cached; got %d parses", next.calls.Load())
	}

	// a missing file is reported by the wrapped reader
	next.calls.Store(0)
	if _, err := reader.ParseOne(ctx, trackmap.ActivityDescriptor{ID: 2, SourceFile: "missing.gpx"}); err == nil {
		t.Error("expected error for missing file")
	}
	if next.calls.Load() != 1 {
		t.Errorf("expected missing file to be passed through, got %d calls", next.calls.Load())
	}
}
