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

package render

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/timelinize/trackmap/trackmap"
)

// GeoJSON writes a FeatureCollection with one Point feature per point.
// Each feature carries its activity, category and a simplestyle
// "marker-color" of its class.
type GeoJSON struct {
	Path string
}

// Render writes the collection to g.Path.
func (g GeoJSON) Render(ctx context.Context, points []trackmap.Point, categoryOf trackmap.CategoryFunc) error {
	fc, err := featureCollection(ctx, points, categoryOf)
	if err != nil {
		return err
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	f, err := createFile(g.Path)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func featureCollection(ctx context.Context, points []trackmap.Point, categoryOf trackmap.CategoryFunc) (*geojson.FeatureCollection, error) {
	cats, err := categories(points, categoryOf)
	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	for i, p := range points {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		f := geojson.NewFeature(orb.Point{p.Longitude, p.Latitude})
		class := ClassOf(cats[i])
		f.Properties["activity"] = p.ActivityID
		f.Properties["category"] = cats[i]
		f.Properties["elevation"] = p.Elevation
		f.Properties["marker-color"] = hexColor(class.Color())
		fc.Append(f)
	}
	return fc, nil
}
