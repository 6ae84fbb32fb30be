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

// Package nmea0183 reads track points from NMEA 0183 logs written by
// GPS receivers, radios and other marine electronics. Free reference
// manuals for the sentences used here:
// - https://receiverhelp.trimble.com/alloy-gnss/en-us/NMEA-0183messages_MessageOverview.html
// - https://www.sparkfun.com/datasheets/GPS/NMEA%20Reference%20Manual-Rev2.1-Dec07.pdf
package nmea0183

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/adrianmo/go-nmea"
	"github.com/timelinize/trackmap/trackmap"
)

// ReadPoints returns a point for every position fix in the log in r,
// in log order. Only RMC and GGA sentences carry positions; other
// sentences are ignored, as are fixes the receiver marked invalid.
// Receivers usually emit an RMC and a GGA for the same fix, so a fix
// at the same position as the previous point is merged into it (GGA
// contributes the altitude).
func ReadPoints(ctx context.Context, r io.Reader, activityID int) ([]trackmap.Point, error) {
	scanner := bufio.NewScanner(r)

	// some radios produce \r-delimited (carriage-return ONLY) newlines,
	// which the default scanner does not support
	scanner.Split(scanLines)

	var points []trackmap.Point
	for line := 1; scanner.Scan(); line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		sentence, err := nmea.Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parsing line %d: %w", line, err)
		}

		var lat, lon, alt float64
		var hasAlt bool
		switch s := sentence.(type) {
		case nmea.RMC:
			if s.Validity == nmea.InvalidRMC {
				continue
			}
			lat, lon = s.Latitude, s.Longitude
		case nmea.GGA:
			if s.FixQuality == nmea.Invalid {
				continue
			}
			lat, lon, alt, hasAlt = s.Latitude, s.Longitude, s.Altitude, true
		default:
			continue
		}

		if n := len(points); n > 0 && points[n-1].Latitude == lat && points[n-1].Longitude == lon {
			if hasAlt {
				points[n-1].Elevation = alt
			}
			continue
		}

		p, err := trackmap.NewPoint(lat, lon, alt, activityID)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		points = append(points, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error: %w", err)
	}

	return points, nil
}

// scanLines is a bufio.SplitFunc for Scanners that tolerates variable newlines,
// including carriage-return-only. https://stackoverflow.com/a/74962607/1048862
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			// We have a line terminated by single newline.
			return i + 1, data[0:i], nil
		}
		// We have a line terminated by carriage return at the end of the buffer.
		if !atEOF && len(data) == i+1 {
			return 0, nil, nil
		}
		advance = i + 1
		if len(data) > i+1 && data[i+1] == '\n' {
			advance++
		}
		return advance, data[0:i], nil
	}
	// If we're at EOF, we have a final, non-terminated line. Return it.
	if atEOF {
		return len(data), data, nil
	}
	// Request more data.
	return 0, nil, nil
}
