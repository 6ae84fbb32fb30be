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

// Package render writes the final points of a run as map files: KML
// for Google Earth, GeoJSON for web maps and a PNG scatter plot.
package render

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"

	"github.com/timelinize/trackmap/trackmap"
)

// Class groups categories that are drawn the same way.
type Class string

const (
	Foot  Class = "foot"
	Bike  Class = "bike"
	Other Class = "other"
)

// ClassOf returns the drawing class of an activity category.
func ClassOf(category string) Class {
	switch category {
	case "Running", "Hiking", "Walking":
		return Foot
	case "Cycling":
		return Bike
	}
	return Other
}

// Color returns the color points of the class are drawn in.
func (c Class) Color() color.RGBA {
	switch c {
	case Foot:
		return color.RGBA{R: 0x90, G: 0xee, B: 0x90, A: 0xff} // light green
	case Bike:
		return color.RGBA{R: 0x00, G: 0xff, B: 0xff, A: 0xff} // aqua
	}
	return color.RGBA{R: 0xff, G: 0x00, B: 0x00, A: 0xff} // red
}

// Names of the registered outputs.
const (
	OutputKML     = "kml"
	OutputGeoJSON = "geojson"
	OutputPNG     = "png"
)

var outputFiles = map[string]string{
	OutputKML:     "heatmap.kml",
	OutputGeoJSON: "heatmap.geojson",
	OutputPNG:     "heatmap.png",
}

// OutputNames returns the names accepted by NewOutput.
func OutputNames() []string {
	names := make([]string, 0, len(outputFiles))
	for name := range outputFiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewOutput returns the named output writing into dir, and the path
// of the file it will write.
func NewOutput(name, dir string) (trackmap.Output, string, error) {
	filename, ok := outputFiles[name]
	if !ok {
		return trackmap.Output{}, "", fmt.Errorf("unknown output %q (want one of %v)", name, OutputNames())
	}
	outPath := filepath.Join(dir, filename)

	var sink trackmap.RenderSink
	switch name {
	case OutputKML:
		sink = KML{Path: outPath}
	case OutputGeoJSON:
		sink = GeoJSON{Path: outPath}
	case OutputPNG:
		sink = PNG{Path: outPath}
	}
	return trackmap.Output{Name: name, Sink: sink}, outPath, nil
}

// createFile creates filename and its parent directories.
func createFile(filename string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return nil, err
	}
	return os.Create(filename)
}

// categories resolves the category of every point, looking up each
// activity only once.
func categories(points []trackmap.Point, categoryOf trackmap.CategoryFunc) ([]string, error) {
	cache := make(map[int]string)
	out := make([]string, len(points))
	for i, p := range points {
		cat, ok := cache[p.ActivityID]
		if !ok {
			var err error
			cat, err = categoryOf(p.ActivityID)
			if err != nil {
				return nil, err
			}
			cache[p.ActivityID] = cat
		}
		out[i] = cat
	}
	return out, nil
}

// hexColor formats c as #rrggbb.
func hexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
