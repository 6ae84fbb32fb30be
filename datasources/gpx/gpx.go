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

// Package gpx reads track points from GPS Exchange Format files
// (https://en.wikipedia.org/wiki/GPS_Exchange_Format).
package gpx

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/timelinize/trackmap/trackmap"
)

// TrackPoint is a <trkpt> element. The coordinates are kept as the
// attribute text so that a missing or empty attribute is not mistaken
// for 0; use Coordinates to parse them.
type TrackPoint struct {
	XMLName xml.Name  `xml:"trkpt"`
	Lat     string    `xml:"lat,attr"`
	Lon     string    `xml:"lon,attr"`
	Ele     *float64  `xml:"ele"` // elevation; nil if absent
	Time    time.Time `xml:"time"`
}

// Coordinates parses the lat and lon attributes. Both are required.
func (tp TrackPoint) Coordinates() (lat, lon float64, err error) {
	lat, err = parseCoordAttr("lat", tp.Lat)
	if err != nil {
		return 0, 0, err
	}
	lon, err = parseCoordAttr("lon", tp.Lon)
	if err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}

func parseCoordAttr(name, val string) (float64, error) {
	val = strings.TrimSpace(val)
	if val == "" {
		return 0, fmt.Errorf("missing %s attribute", name)
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s attribute: %w", name, err)
	}
	return f, nil
}

// Decoder streams track points out of a GPX document without loading
// it all into memory. Only points under gpx/trk/trkseg are returned;
// route and waypoint elements are ignored.
type Decoder struct {
	*xml.Decoder
	stack nesting

	// Name and Type of the current <trk>, if it has them.
	// Strava writes e.g. <type>cycling</type>.
	TrackName string
	TrackType string
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{Decoder: xml.NewDecoder(r)}
}

// Next returns the next track point. It returns nil, nil at the end
// of the document.
func (d *Decoder) Next(ctx context.Context) (*TrackPoint, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tkn, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decoding next XML token: %w", err)
		}

		switch elem := tkn.(type) {
		case xml.StartElement:
			if d.stack.path() == "gpx/trk" {
				switch elem.Name.Local {
				case "name":
					if err := d.DecodeElement(&d.TrackName, &elem); err != nil {
						return nil, fmt.Errorf("decoding track name: %w", err)
					}
					continue
				case "type":
					if err := d.DecodeElement(&d.TrackType, &elem); err != nil {
						return nil, fmt.Errorf("decoding track type: %w", err)
					}
					d.TrackType = strings.TrimSpace(d.TrackType)
					continue
				}
			}
			if elem.Name.Local == "trkpt" && d.stack.path() == "gpx/trk/trkseg" {
				var point TrackPoint
				if err := d.DecodeElement(&point, &elem); err != nil {
					return nil, fmt.Errorf("decoding XML element as track point: %w", err)
				}
				return &point, nil
			}

			d.stack = append(d.stack, elem.Name.Local)

		case xml.EndElement:
			if len(d.stack) == 0 {
				return nil, fmt.Errorf("encountered end tag without opening: %s", elem.Name.Local)
			}
			d.stack = d.stack[:len(d.stack)-1]
		}
	}

	if len(d.stack) > 0 {
		return nil, fmt.Errorf("unexpected end of document inside <%s>", d.stack.path())
	}
	return nil, nil
}

type nesting []string

func (n nesting) path() string {
	return strings.Join(n, "/")
}

// ReadPoints decodes every track point in r as a point of the given
// activity, in document order. A point without elevation gets 0.
func ReadPoints(ctx context.Context, r io.Reader, activityID int) ([]trackmap.Point, error) {
	dec := NewDecoder(r)
	var points []trackmap.Point
	for {
		tp, err := dec.Next(ctx)
		if err != nil {
			return nil, err
		}
		if tp == nil {
			break
		}
		lat, lon, err := tp.Coordinates()
		if err != nil {
			return nil, fmt.Errorf("track point %d: %w", len(points), err)
		}
		var ele float64
		if tp.Ele != nil {
			ele = *tp.Ele
		}
		p, err := trackmap.NewPoint(lat, lon, ele, activityID)
		if err != nil {
			return nil, fmt.Errorf("track point %d: %w", len(points), err)
		}
		points = append(points, p)
	}
	return points, nil
}

// Reader is a trackmap.TrackFileReader for GPX files in a file system.
// Files ending in .gz are decompressed on the fly.
type Reader struct {
	FS fs.FS
}

// ParseOne reads the track file of the activity.
func (r Reader) ParseOne(ctx context.Context, act trackmap.ActivityDescriptor) ([]trackmap.Point, error) {
	points, err := r.parse(ctx, act)
	if err != nil {
		return nil, &trackmap.ParseError{ActivityID: act.ID, Path: act.SourceFile, Err: err}
	}
	return points, nil
}

func (r Reader) parse(ctx context.Context, act trackmap.ActivityDescriptor) ([]trackmap.Point, error) {
	rc, err := trackmap.OpenTrackFile(r.FS, act.SourceFile)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return ReadPoints(ctx, rc, act.ID)
}

// IsTrackFile reports whether filename looks like a GPX track file.
func IsTrackFile(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".gpx") || strings.HasSuffix(lower, ".gpx.gz")
}
