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

package trackmap

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"
)

type captureSink struct {
	points []Point
	err    error
}

func (c *captureSink) Render(_ context.Context, points []Point, categoryOf CategoryFunc) error {
	for _, p := range points {
		if _, err := categoryOf(p.ActivityID); err != nil {
			return err
		}
	}
	c.points = points
	return c.err
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	idx := NewStaticIndex(descriptors(6))

	// every activity runs the same route
	sameRoute := TrackFileReaderFunc(func(ctx context.Context, act ActivityDescriptor) ([]Point, error) {
		points, err := fakeTrack(ctx, act)
		for i := range points {
			points[i].Latitude = 0
		}
		return points, err
	})

	sink := new(captureSink)
	report, final, err := Run(context.Background(), idx, sameRoute, RunOptions{
		Ingest:  IngestOptions{Parallelism: 3},
		WorkDir: dir,
		Outputs: []Output{{Name: "capture", Sink: sink}},
		Logger:  zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.RunID == "" {
		t.Error("expected a run ID")
	}
	if report.Ingest.Parsed != 6 || report.Ingest.RawPoints != 60 {
		t.Errorf("unexpected ingest summary: %+v", report.Ingest)
	}
	if report.FinalPoints != 10 || len(final) != 10 {
		t.Errorf("expected the repeated route to reduce to 10 points, got %d", report.FinalPoints)
	}
	if diff := cmp.Diff([]string{"capture"}, report.Outputs); diff != "" {
		t.Errorf("unexpected outputs:\n%s", diff)
	}
	if diff := cmp.Diff(final, sink.points); diff != "" {
		t.Errorf("sink got different points than returned:\n%s", diff)
	}

	raw, err := PointFile(filepath.Join(dir, RawPointsFile)).LoadPoints()
	if err != nil {
		t.Fatalf("loading raw points: %v", err)
	}
	if len(raw) != 60 {
		t.Errorf("raw points file has %d points, want 60", len(raw))
	}
	processed, err := PointFile(filepath.Join(dir, ProcessedPointsFile)).LoadPoints()
	if err != nil {
		t.Fatalf("loading processed points: %v", err)
	}
	if diff := cmp.Diff(final, processed); diff != "" {
		t.Errorf("processed points file differs from the result:\n%s", diff)
	}

	// filtering the saved raw points again gives the same result
	// without parsing anything
	noParse := TrackFileReaderFunc(func(context.Context, ActivityDescriptor) ([]Point, error) {
		t.Error("reader called when points were given")
		return nil, nil
	})
	report2, final2, err := Run(context.Background(), idx, noParse, RunOptions{
		Points: PointFile(filepath.Join(dir, RawPointsFile)),
		Logger: zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("re-running from saved points: %v", err)
	}
	if diff := cmp.Diff(sortPoints(final), sortPoints(final2)); diff != "" {
		t.Errorf("re-run from saved points differs:\n%s", diff)
	}
	if report2.Ingest.RawPoints != 60 {
		t.Errorf("re-run raw points = %d, want 60", report2.Ingest.RawPoints)
	}
}

func TestRunStaleIndex(t *testing.T) {
	dir := t.TempDir()
	pf := PointFile(filepath.Join(dir, "points.csv"))
	if err := pf.SavePoints([]Point{pt(0, 0, 0), pt(0, 0, 99)}); err != nil {
		t.Fatal(err)
	}

	_, _, err := Run(context.Background(), NewStaticIndex(descriptors(2)), nil, RunOptions{Points: pf})
	if !errors.Is(err, ErrUnknownActivity) {
		t.Errorf("expected ErrUnknownActivity for a point of an unknown activity, got %v", err)
	}
}

func TestRunRenderError(t *testing.T) {
	renderErr := errors.New("disk full")
	_, _, err := Run(context.Background(), NewStaticIndex(descriptors(2)), TrackFileReaderFunc(fakeTrack), RunOptions{
		Outputs: []Output{{Name: "broken", Sink: &captureSink{err: renderErr}}},
	})
	if !errors.Is(err, renderErr) {
		t.Errorf("expected render error, got %v", err)
	}
}
