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

import "math"

// EarthRadiusMeters is the radius of the sphere used for distances.
// This is a spherical approximation, not an ellipsoid.
const EarthRadiusMeters = 6373 * 1000.0

const degToRad = math.Pi / 180

// GreatCircleDistance returns the distance in meters between a and b
// along the surface of a sphere, using the spherical law of cosines.
//
// Rounding can push the cosine of the central angle slightly outside
// [-1,1] for (nearly) coincident or antipodal points, so it is clamped
// before the inverse cosine. For valid points the result is always a
// finite, non-negative number, and exactly 0 for identical points.
func GreatCircleDistance(a, b Point) float64 {
	d, _ := arcDistance(a, b)
	return d
}

// Distance is like GreatCircleDistance, but it returns an error instead
// of NaN if the points are outside the valid domain (e.g. NaN
// coordinates that were never validated).
func Distance(a, b Point) (float64, error) {
	d, arg := arcDistance(a, b)
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, &GeometryDomainError{A: a, B: b, Arg: arg}
	}
	return d, nil
}

// arcDistance returns the distance and the (clamped) acos argument.
func arcDistance(a, b Point) (float64, float64) {
	if a.Latitude == b.Latitude && a.Longitude == b.Longitude {
		return 0, 1
	}

	// spherical coordinates: colatitude and azimuth
	phi1 := (90.0 - a.Latitude) * degToRad
	phi2 := (90.0 - b.Latitude) * degToRad
	theta1 := a.Longitude * degToRad
	theta2 := b.Longitude * degToRad

	arg := math.Sin(phi1)*math.Sin(phi2)*math.Cos(theta1-theta2) + math.Cos(phi1)*math.Cos(phi2)
	arg = max(-1, min(1, arg)) // NaN stays NaN

	return math.Acos(arg) * EarthRadiusMeters, arg
}
