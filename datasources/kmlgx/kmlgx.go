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

// Package kmlgx reads track points from KML files, in particular the
// gx:Track elements of the Google extension namespace written by Google
// Earth and many GPS apps. Plain LineString and Point coordinates are
// read too.
package kmlgx

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/timelinize/trackmap/trackmap"
)

// Each gx:Track element is decoded whole, because its when and coord
// entries are not required to alternate. Points of the document's
// tracks are returned in document order.

type gxTrack struct {
	When  []time.Time `xml:"when"`
	Coord []string    `xml:"coord"`
}

// ReadPoints decodes every track point in the KML document in r as a
// point of the given activity. A coordinate without altitude gets
// elevation 0.
func ReadPoints(ctx context.Context, r io.Reader, activityID int) ([]trackmap.Point, error) {
	dec := xml.NewDecoder(r)
	var points []trackmap.Point
	var sawKML bool

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tkn, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decoding next XML token: %w", err)
		}

		elem, ok := tkn.(xml.StartElement)
		if !ok {
			continue
		}

		switch elem.Name.Local {
		case "kml":
			sawKML = true

		case "Track":
			var track gxTrack
			if err := dec.DecodeElement(&track, &elem); err != nil {
				return nil, fmt.Errorf("decoding gx:Track: %w", err)
			}
			if len(track.When) > 0 && len(track.When) != len(track.Coord) {
				return nil, fmt.Errorf("corrupt gx:Track: %d timestamps but %d coordinates", len(track.When), len(track.Coord))
			}
			for _, coord := range track.Coord {
				// gx:coord separates with spaces: "lon lat alt"
				p, err := parseCoord(strings.Fields(coord), activityID)
				if err != nil {
					return nil, fmt.Errorf("gx:coord %d: %w", len(points), err)
				}
				points = append(points, p)
			}

		case "coordinates":
			var coords string
			if err := dec.DecodeElement(&coords, &elem); err != nil {
				return nil, fmt.Errorf("decoding coordinates: %w", err)
			}
			// tuples separated by whitespace, values by commas: "lon,lat[,alt]"
			for _, tuple := range strings.Fields(coords) {
				p, err := parseCoord(strings.Split(tuple, ","), activityID)
				if err != nil {
					return nil, fmt.Errorf("coordinates %d: %w", len(points), err)
				}
				points = append(points, p)
			}
		}
	}

	if !sawKML {
		return nil, errors.New("not a KML document")
	}
	return points, nil
}

func parseCoord(fields []string, activityID int) (trackmap.Point, error) {
	if len(fields) < 2 {
		return trackmap.Point{}, fmt.Errorf("expected at least longitude and latitude, got %q", strings.Join(fields, " "))
	}
	lon, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return trackmap.Point{}, fmt.Errorf("longitude: %w", err)
	}
	lat, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return trackmap.Point{}, fmt.Errorf("latitude: %w", err)
	}
	var alt float64
	if len(fields) > 2 && fields[2] != "" {
		alt, err = strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return trackmap.Point{}, fmt.Errorf("altitude: %w", err)
		}
	}
	return trackmap.NewPoint(lat, lon, alt, activityID)
}
