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
	"fmt"
	"os"
	"path/filepath"

	"github.com/timelinize/trackmap/trackmap"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// PNG draws the points as a longitude/latitude scatter plot with one
// series per category, colored by class.
type PNG struct {
	Path string

	// Image size; defaults to 10x10 inches.
	Width, Height vg.Length
}

// Render saves the plot to p.Path.
func (p PNG) Render(ctx context.Context, points []trackmap.Point, categoryOf trackmap.CategoryFunc) error {
	plt, err := scatterPlot(ctx, points, categoryOf)
	if err != nil {
		return err
	}
	w, h := p.Width, p.Height
	if w == 0 {
		w = 10 * vg.Inch
	}
	if h == 0 {
		h = 10 * vg.Inch
	}
	if err := os.MkdirAll(filepath.Dir(p.Path), 0755); err != nil {
		return err
	}
	if err := plt.Save(w, h, p.Path); err != nil {
		return fmt.Errorf("saving plot: %w", err)
	}
	return nil
}

func scatterPlot(ctx context.Context, points []trackmap.Point, categoryOf trackmap.CategoryFunc) (*plot.Plot, error) {
	partitions, err := trackmap.PartitionByCategory(points, categoryOf)
	if err != nil {
		return nil, err
	}

	plt := plot.New()
	plt.Title.Text = fmt.Sprintf("%d points", len(points))
	plt.X.Label.Text = "Longitude"
	plt.Y.Label.Text = "Latitude"
	plt.Add(plotter.NewGrid())

	for _, part := range partitions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		xys := make(plotter.XYs, len(part.Points))
		for i, pt := range part.Points {
			xys[i] = plotter.XY{X: pt.Longitude, Y: pt.Latitude}
		}
		scatter, err := plotter.NewScatter(xys)
		if err != nil {
			return nil, fmt.Errorf("plotting category %q: %w", part.Category, err)
		}
		scatter.Color = ClassOf(part.Category).Color()
		scatter.Radius = vg.Points(1)
		scatter.Shape = draw.CircleGlyph{}

		plt.Add(scatter)
		plt.Legend.Add(fmt.Sprintf("%s (%d)", part.Category, len(part.Points)), scatter)
	}
	return plt, nil
}
