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

package runkeeper

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/timelinize/trackmap/trackmap"
	"go.uber.org/zap/zaptest"
)

const testIndex = `Activity Id,Date,Type,Route Name,Distance (km),Duration,GPX File
a1,2019-06-01 07:30:00,Running,Riverside,5.01,28:10,2019-06-01-073000.gpx
a2,2019-06-02 18:00:00,Cycling,,21.3,55:00,2019-06-02-180000.gpx
a3,2019-06-03 12:00:00,Running,,3.2,20:00,
a4,bad date,Walking,,1.0,15:00,2019-06-04-120000.gpx
`

func TestReadIndex(t *testing.T) {
	activities, err := ReadIndex(context.Background(), strings.NewReader(testIndex), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []trackmap.ActivityDescriptor{
		{
			ID:         0,
			Category:   "Running",
			SourceFile: "2019-06-01-073000.gpx",
			Name:       "Riverside",
			ExternalID: "a1",
			Date:       time.Date(2019, 6, 1, 7, 30, 0, 0, time.UTC),
		},
		{
			ID:         1,
			Category:   "Cycling",
			SourceFile: "2019-06-02-180000.gpx",
			ExternalID: "a2",
			Date:       time.Date(2019, 6, 2, 18, 0, 0, 0, time.UTC),
		},
		{
			// the manual entry before this one has no ID
			ID:         2,
			Category:   "Walking",
			SourceFile: "2019-06-04-120000.gpx",
			ExternalID: "a4",
		},
	}
	if diff := cmp.Diff(expected, activities); diff != "" {
		t.Errorf("unexpected activities (-want +got):\n%s", diff)
	}
}

func TestReadIndexMissingColumns(t *testing.T) {
	for i, tc := range []string{
		"Activity Id,Date,GPX File\na1,2019-06-01 07:30:00,x.gpx\n",
		"Activity Id,Date,Type\na1,2019-06-01 07:30:00,Running\n",
	} {
		if _, err := ReadIndex(context.Background(), strings.NewReader(tc), nil); err == nil {
			t.Errorf("Test %d: expected error", i)
		}
	}
}

func TestRecognizeAndOpen(t *testing.T) {
	const track = `<gpx><trk><trkseg><trkpt lat="1" lon="2"/><trkpt lat="1.001" lon="2"/></trkseg></trk></gpx>`

	fsys := fstest.MapFS{
		IndexFile:                   {Data: []byte(testIndex)},
		"2019-06-01-073000.gpx":     {Data: []byte(track)},
		"2019-06-02-180000.gpx":     {Data: []byte(track)},
		"2019-06-04-120000.gpx":     {Data: []byte(track)},
		"old/" + IndexFile + ".bak": {Data: []byte("x")},
	}
	input := trackmap.Input{FS: fsys}
	ctx := context.Background()

	rec, err := Recognize(ctx, input)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Confidence != 1 {
		t.Errorf("expected confidence 1, got %v", rec.Confidence)
	}

	exp, err := Open(ctx, input)
	if err != nil {
		t.Fatalf("opening export: %v", err)
	}
	defer exp.Close()

	if len(exp.Activities()) != 3 {
		t.Fatalf("expected 3 activities, got %d", len(exp.Activities()))
	}
	cat, err := exp.CategoryOf(1)
	if err != nil || cat != "Cycling" {
		t.Errorf("CategoryOf(1) = %q, %v", cat, err)
	}
	points, err := exp.ParseOne(ctx, exp.Activities()[1])
	if err != nil {
		t.Fatalf("parsing track: %v", err)
	}
	if len(points) != 2 || points[0].ActivityID != 1 {
		t.Errorf("unexpected points: %+v", points)
	}

	rec, err = Recognize(ctx, trackmap.Input{FS: fstest.MapFS{"a.gpx": {}}})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Confidence != 0 {
		t.Errorf("expected no confidence without index, got %v", rec.Confidence)
	}
}
