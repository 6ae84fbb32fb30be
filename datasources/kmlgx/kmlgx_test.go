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

package kmlgx

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/timelinize/trackmap/trackmap"
)

func TestReadPoints(t *testing.T) {
	for i, tc := range []struct {
		doc    string
		expect []trackmap.Point
	}{
		{
			doc: `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2" xmlns:gx="http://www.google.com/kml/ext/2.2">
<Document><name>Ride</name><Placemark><gx:Track>
	<when>2010-05-28T02:02:09Z</when>
	<when>2010-05-28T02:02:35Z</when>
	<gx:coord>-122.207881 37.371915 156.0</gx:coord>
	<gx:coord>-122.205712 37.373288 152.0</gx:coord>
</gx:Track></Placemark></Document></kml>`,
			expect: []trackmap.Point{
				{Latitude: 37.371915, Longitude: -122.207881, Elevation: 156, ActivityID: 2},
				{Latitude: 37.373288, Longitude: -122.205712, Elevation: 152, ActivityID: 2},
			},
		},
		{
			doc: `<kml xmlns="http://www.opengis.net/kml/2.2"><Document>
<Placemark><LineString><coordinates>
	-122.1,37.1,10 -122.2,37.2
</coordinates></LineString></Placemark>
<Folder><Placemark><Point><coordinates>-122.3,37.3</coordinates></Point></Placemark></Folder>
</Document></kml>`,
			expect: []trackmap.Point{
				{Latitude: 37.1, Longitude: -122.1, Elevation: 10, ActivityID: 2},
				{Latitude: 37.2, Longitude: -122.2, ActivityID: 2},
				{Latitude: 37.3, Longitude: -122.3, ActivityID: 2},
			},
		},
		{
			doc: `<kml><Document/></kml>`,
		},
	} {
		actual, err := ReadPoints(context.Background(), strings.NewReader(tc.doc), 2)
		if err != nil {
			t.Errorf("Test %d: unexpected error: %v", i, err)
			continue
		}
		if diff := cmp.Diff(tc.expect, actual); diff != "" {
			t.Errorf("Test %d: unexpected points (-want +got):\n%s", i, diff)
		}
	}
}

func TestReadPointsMalformed(t *testing.T) {
	for i, doc := range []string{
		`<gpx><trk/></gpx>`,
		`<kml><gx:Track><when>2010-05-28T02:02:09Z</when></gx:Track></kml>`,
		`<kml><gx:Track><gx:coord>east north</gx:coord></gx:Track></kml>`,
		`<kml><Point><coordinates>-122.1</coordinates></Point></kml>`,
		`<kml><Point><coordinates>10,95</coordinates></Point></kml>`,
		`<kml><Point>`,
	} {
		if _, err := ReadPoints(context.Background(), strings.NewReader(doc), 0); err == nil {
			t.Errorf("Test %d: expected error for %s", i, doc)
		}
	}
}
