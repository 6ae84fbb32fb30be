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

// Package trackmap reduces the GPS samples of many recorded activities
// into a spatially de-duplicated point set suitable for drawing a map.
//
// The pipeline is: an export's activity index drives a pool of workers
// that parse each activity's track file (Ingest); the merged points are
// partitioned by activity category and each partition is thinned by
// two proximity passes (Deduplicate); the survivors go to one or more
// RenderSinks.
package trackmap

import (
	"fmt"
	"math"
	"strconv"
)

// Point is one GPS sample belonging to an activity. It is a plain
// value; once created it is never modified, only copied.
type Point struct {
	Latitude   float64 // degrees, [-90, 90]
	Longitude  float64 // degrees, [-180, 180]
	Elevation  float64 // meters
	ActivityID int
}

// NewPoint returns a point after checking that the coordinates are
// finite and in range and that the activity ID is not negative.
func NewPoint(lat, lon, ele float64, activityID int) (Point, error) {
	p := Point{Latitude: lat, Longitude: lon, Elevation: ele, ActivityID: activityID}
	if err := p.Validate(); err != nil {
		return Point{}, err
	}
	return p, nil
}

// Validate returns an error if p is outside the valid domain.
func (p Point) Validate() error {
	if math.IsNaN(p.Latitude) || p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("latitude out of range [-90,90]: %v", p.Latitude)
	}
	if math.IsNaN(p.Longitude) || p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("longitude out of range [-180,180]: %v", p.Longitude)
	}
	if math.IsNaN(p.Elevation) || math.IsInf(p.Elevation, 0) {
		return fmt.Errorf("elevation is not finite: %v", p.Elevation)
	}
	if p.ActivityID < 0 {
		return fmt.Errorf("negative activity ID: %d", p.ActivityID)
	}
	return nil
}

func (p Point) String() string {
	return "<Point lat=" + formatFloat(p.Latitude) +
		" lon=" + formatFloat(p.Longitude) +
		" ele=" + formatFloat(p.Elevation) +
		" activity=" + strconv.Itoa(p.ActivityID) + ">"
}

// formatFloat is the shortest representation that parses back to
// exactly the same float64.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
