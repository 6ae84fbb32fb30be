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
	"bufio"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/timelinize/trackmap/trackmap"
)

// Defaults for KML output.
const (
	DefaultKMLName      = "Runkeeper Heatmap"
	DefaultKMLIcon      = "http://maps.google.com/mapfiles/kml/shapes/shaded_dot.png"
	DefaultKMLIconScale = 0.45
)

// KML writes every point as a styled placemark, colored by the class
// of its activity's category.
type KML struct {
	Path string

	// Document name; defaults to DefaultKMLName.
	Name string
}

// Render writes the KML document to k.Path.
func (k KML) Render(ctx context.Context, points []trackmap.Point, categoryOf trackmap.CategoryFunc) error {
	f, err := createFile(k.Path)
	if err != nil {
		return err
	}
	if err := k.write(ctx, f, points, categoryOf); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (k KML) write(ctx context.Context, w io.Writer, points []trackmap.Point, categoryOf trackmap.CategoryFunc) error {
	cats, err := categories(points, categoryOf)
	if err != nil {
		return err
	}
	name := k.Name
	if name == "" {
		name = DefaultKMLName
	}

	bw := bufio.NewWriter(w)
	if _, err := io.WriteString(bw, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(bw)
	enc.Indent("", " ")

	kmlStart := xml.StartElement{
		Name: xml.Name{Local: "kml"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "xmlns"}, Value: "http://www.opengis.net/kml/2.2"}},
	}
	docStart := xml.StartElement{Name: xml.Name{Local: "Document"}}
	if err := enc.EncodeToken(kmlStart); err != nil {
		return err
	}
	if err := enc.EncodeToken(docStart); err != nil {
		return err
	}
	if err := enc.EncodeElement(name, xml.StartElement{Name: xml.Name{Local: "name"}}); err != nil {
		return err
	}
	for _, class := range []Class{Foot, Bike, Other} {
		if err := enc.Encode(kmlStyleFor(class)); err != nil {
			return err
		}
	}

	// placemarks are encoded one at a time so the document is never
	// held in memory
	for i, p := range points {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		pm := kmlPlacemark{
			StyleURL: "#" + string(ClassOf(cats[i])),
			Point: kmlPoint{
				Coordinates: strconv.FormatFloat(p.Longitude, 'f', -1, 64) + "," +
					strconv.FormatFloat(p.Latitude, 'f', -1, 64),
			},
		}
		if err := enc.Encode(pm); err != nil {
			return fmt.Errorf("encoding placemark %d: %w", i, err)
		}
	}

	if err := enc.EncodeToken(docStart.End()); err != nil {
		return err
	}
	if err := enc.EncodeToken(kmlStart.End()); err != nil {
		return err
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	return bw.Flush()
}

type kmlStyle struct {
	XMLName   xml.Name     `xml:"Style"`
	ID        string       `xml:"id,attr"`
	IconStyle kmlIconStyle `xml:"IconStyle"`
}

type kmlIconStyle struct {
	Color string  `xml:"color"`
	Scale float64 `xml:"scale"`
	Icon  struct {
		Href string `xml:"href"`
	} `xml:"Icon"`
}

type kmlPlacemark struct {
	XMLName  xml.Name `xml:"Placemark"`
	StyleURL string   `xml:"styleUrl"`
	Point    kmlPoint `xml:"Point"`
}

type kmlPoint struct {
	Coordinates string `xml:"coordinates"`
}

func kmlStyleFor(class Class) kmlStyle {
	s := kmlStyle{ID: string(class)}
	s.IconStyle.Color = kmlColor(class.Color())
	s.IconStyle.Scale = DefaultKMLIconScale
	s.IconStyle.Icon.Href = DefaultKMLIcon
	return s
}

// kmlColor formats c the way KML wants it: aabbggrr in hex.
func kmlColor(c interface{ RGBA() (r, g, b, a uint32) }) string {
	r, g, b, a := c.RGBA()
	return fmt.Sprintf("%02x%02x%02x%02x", a>>8, b>>8, g>>8, r>>8)
}
