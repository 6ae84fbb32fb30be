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
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// Names of the intermediate files in a work directory.
const (
	RawPointsFile       = "rawpoints.csv"
	ProcessedPointsFile = "processedpoints.csv"
)

// WritePoints writes points as CSV records of latitude, longitude,
// elevation and activity ID, with no header and "\n" line endings.
// Floats are written in their shortest exact form so that ReadPoints
// gives back the same values.
func WritePoints(w io.Writer, points []Point) error {
	cw := csv.NewWriter(w)
	rec := make([]string, 4) //nolint:mnd
	for _, p := range points {
		rec[0] = formatFloat(p.Latitude)
		rec[1] = formatFloat(p.Longitude)
		rec[2] = formatFloat(p.Elevation)
		rec[3] = strconv.Itoa(p.ActivityID)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadPoints reads points written by WritePoints.
func ReadPoints(r io.Reader) ([]Point, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 4
	cr.ReuseRecord = true

	points := []Point{}
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		p, err := recordToPoint(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		points = append(points, p)
	}
	return points, nil
}

func recordToPoint(rec []string) (Point, error) {
	var vals [3]float64
	for i := range vals {
		v, err := strconv.ParseFloat(rec[i], 64)
		if err != nil {
			return Point{}, err
		}
		vals[i] = v
	}
	id, err := strconv.Atoi(rec[3])
	if err != nil {
		return Point{}, err
	}
	return NewPoint(vals[0], vals[1], vals[2], id)
}

// PointFile is a CSV file of points. It is both a PointSink and a
// PointSource.
type PointFile string

// SavePoints writes points to the file, replacing it.
func (pf PointFile) SavePoints(points []Point) error {
	if err := os.MkdirAll(filepath.Dir(string(pf)), 0755); err != nil {
		return fmt.Errorf("creating directory for point file: %w", err)
	}
	f, err := os.Create(string(pf))
	if err != nil {
		return err
	}
	if err := WritePoints(f, points); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", pf, err)
	}
	return f.Close()
}

// LoadPoints reads all points from the file.
func (pf PointFile) LoadPoints() ([]Point, error) {
	f, err := os.Open(string(pf))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	points, err := ReadPoints(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", pf, err)
	}
	return points, nil
}
