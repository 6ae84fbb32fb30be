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
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func testIndex() *StaticIndex {
	return NewStaticIndex([]ActivityDescriptor{
		{ID: 0, Category: "Running", SourceFile: "0.gpx"},
		{ID: 1, Category: "Cycling", SourceFile: "1.gpx"},
		{ID: 2, Category: "Running", SourceFile: "2.gpx"},
		{ID: 3, Category: "Run 10", SourceFile: "3.gpx"},
		{ID: 4, Category: "Run 2", SourceFile: "4.gpx"},
	})
}

func TestPartitionByCategory(t *testing.T) {
	idx := testIndex()
	input := []Point{
		pt(1, 1, 0), pt(2, 2, 1), pt(3, 3, 2), pt(4, 4, 0),
		pt(5, 5, 3), pt(6, 6, 4), pt(7, 7, 1),
	}

	parts, err := PartitionByCategory(input, idx.CategoryOf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expect := []Partition{
		{Category: "Cycling", Points: []Point{pt(2, 2, 1), pt(7, 7, 1)}},
		{Category: "Run 2", Points: []Point{pt(6, 6, 4)}},
		{Category: "Run 10", Points: []Point{pt(5, 5, 3)}},
		{Category: "Running", Points: []Point{pt(1, 1, 0), pt(3, 3, 2), pt(4, 4, 0)}},
	}
	if diff := cmp.Diff(expect, parts); diff != "" {
		t.Errorf("unexpected partitions (-want +got):\n%s", diff)
	}

	var total int
	for _, p := range parts {
		total += len(p.Points)
	}
	if total != len(input) {
		t.Errorf("partitions hold %d points, want %d", total, len(input))
	}
}

func TestPartitionUnknownActivity(t *testing.T) {
	_, err := PartitionByCategory([]Point{pt(0, 0, 0), pt(0, 0, 42)}, testIndex().CategoryOf)
	if !errors.Is(err, ErrUnknownActivity) {
		t.Fatalf("expected ErrUnknownActivity, got %v", err)
	}
	var lookupErr *LookupError
	if !errors.As(err, &lookupErr) || lookupErr.ActivityID != 42 {
		t.Errorf("expected *LookupError for activity 42, got %#v", err)
	}
}

func TestCategories(t *testing.T) {
	expect := []string{"Cycling", "Run 2", "Run 10", "Running"}
	if diff := cmp.Diff(expect, Categories(testIndex())); diff != "" {
		t.Errorf("unexpected categories (-want +got):\n%s", diff)
	}
}

func TestDeduplicate(t *testing.T) {
	idx := testIndex()

	// activities 0 and 2 run the same route; activity 1 rides it.
	// each has a stationary jitter point ~5 m after its first point.
	route := []float64{0, 0.0003, 0.0006}
	var input []Point
	for _, act := range []int{0, 2, 1} {
		input = append(input, pt(route[0], 0, act), pt(route[0]+0.00005, 0, act))
		for _, lat := range route[1:] {
			input = append(input, pt(lat, 0, act))
		}
	}

	var progressCalls []string
	res, err := Deduplicate(context.Background(), input, idx.CategoryOf, DedupeOptions{
		Threshold: 20,
		Logger:    zaptest.NewLogger(t),
		Progress: func(category string, pass int) ProgressFunc {
			progressCalls = append(progressCalls, category)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectPoints := []Point{
		pt(0, 0, 1), pt(0.0003, 0, 1), pt(0.0006, 0, 1),
		pt(0, 0, 0), pt(0.0003, 0, 0), pt(0.0006, 0, 0),
	}
	if diff := cmp.Diff(expectPoints, res.Points); diff != "" {
		t.Errorf("unexpected points (-want +got):\n%s", diff)
	}

	expectStats := []PartitionStats{
		{Category: "Cycling", Input: 4, Pass1: 3, Pass2: 3},
		{Category: "Running", Input: 8, Pass1: 6, Pass2: 3},
	}
	if diff := cmp.Diff(expectStats, res.Partitions); diff != "" {
		t.Errorf("unexpected stats (-want +got):\n%s", diff)
	}

	expectProgress := []string{"Cycling", "Cycling", "Running", "Running"}
	if diff := cmp.Diff(expectProgress, progressCalls); diff != "" {
		t.Errorf("unexpected progress setup calls (-want +got):\n%s", diff)
	}
}

func TestDeduplicateLogsProgress(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	input := []Point{pt(0, 0, 1), pt(0.0003, 0, 1), pt(0, 0, 0), pt(0.0003, 0, 0), pt(0.0003, 0, 2)}

	_, err := Deduplicate(context.Background(), input, testIndex().CategoryOf, DedupeOptions{
		Threshold: 20,
		Logger:    zap.New(core),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	type progress struct {
		Category          string
		Pass, Done, Total int64
	}
	var got []progress
	for _, e := range logs.FilterMessage("filtering").All() {
		if e.LoggerName != ProgressLoggerName {
			t.Errorf("progress logged by %q, want %q", e.LoggerName, ProgressLoggerName)
		}
		m := e.ContextMap()
		got = append(got, progress{
			Category: m["category"].(string),
			Pass:     m["pass"].(int64),
			Done:     m["done"].(int64),
			Total:    m["total"].(int64),
		})
	}
	// each pass reports its start and its end
	expect := []progress{
		{"Cycling", 1, 0, 2}, {"Cycling", 1, 2, 2},
		{"Cycling", 2, 0, 2}, {"Cycling", 2, 2, 2},
		{"Running", 1, 0, 3}, {"Running", 1, 3, 3},
		{"Running", 2, 0, 3}, {"Running", 2, 3, 3},
	}
	if diff := cmp.Diff(expect, got); diff != "" {
		t.Errorf("unexpected progress entries (-want +got):\n%s", diff)
	}
}

func TestDeduplicateCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Deduplicate(ctx, []Point{pt(0, 0, 0)}, testIndex().CategoryOf, DedupeOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
