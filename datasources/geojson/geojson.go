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

// Package geojson reads track points from GeoJSON files (RFC 7946):
// https://geojson.org/
package geojson

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/paulmach/orb"
	orbjson "github.com/paulmach/orb/geojson"
	"github.com/timelinize/trackmap/trackmap"
)

// ElevationProperties are the feature properties, in order of
// preference, that the elevation of a feature's points is read from.
// GeoJSON positions may carry an altitude, but it is not decoded.
var ElevationProperties = []string{"elevation", "ele", "altitude"}

// ReadPoints returns the positions of every Point, MultiPoint,
// LineString and MultiLineString in the GeoJSON document in r, in
// document order. The document may be a FeatureCollection, a Feature
// or a bare geometry. Polygons are not tracks and are skipped.
func ReadPoints(ctx context.Context, r io.Reader, activityID int) ([]trackmap.Point, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decoding GeoJSON: %w", err)
	}

	var features []*orbjson.Feature
	switch probe.Type {
	case "FeatureCollection":
		fc, err := orbjson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, err
		}
		features = fc.Features
	case "Feature":
		f, err := orbjson.UnmarshalFeature(data)
		if err != nil {
			return nil, err
		}
		features = []*orbjson.Feature{f}
	default:
		g, err := orbjson.UnmarshalGeometry(data)
		if err != nil {
			return nil, err
		}
		features = []*orbjson.Feature{orbjson.NewFeature(g.Geometry())}
	}

	var points []trackmap.Point
	for i, f := range features {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ele := elevation(f.Properties)
		points, err = appendGeometry(points, f.Geometry, ele, activityID)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
	}
	return points, nil
}

func appendGeometry(points []trackmap.Point, g orb.Geometry, ele float64, activityID int) ([]trackmap.Point, error) {
	add := func(pts ...orb.Point) error {
		for _, pt := range pts {
			p, err := trackmap.NewPoint(pt.Lat(), pt.Lon(), ele, activityID)
			if err != nil {
				return err
			}
			points = append(points, p)
		}
		return nil
	}

	var err error
	switch geom := g.(type) {
	case orb.Point:
		err = add(geom)
	case orb.MultiPoint:
		err = add(geom...)
	case orb.LineString:
		err = add(geom...)
	case orb.MultiLineString:
		for _, ls := range geom {
			if err = add(ls...); err != nil {
				break
			}
		}
	case orb.Collection:
		for _, sub := range geom {
			if points, err = appendGeometry(points, sub, ele, activityID); err != nil {
				break
			}
		}
	}
	return points, err
}

func elevation(props orbjson.Properties) float64 {
	for _, key := range ElevationProperties {
		if v, ok := props[key].(float64); ok {
			return v
		}
	}
	return 0
}
