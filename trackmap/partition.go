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
	"context"
	"slices"

	"github.com/maruel/natural"
	"go.uber.org/zap"
)

// DefaultThresholdMeters is the default minimum separation of kept points.
const DefaultThresholdMeters = 20.0

// Partition is the points of all activities of one category, in the
// order they appeared in the input.
type Partition struct {
	Category string
	Points   []Point
}

// PartitionByCategory splits points by the category of their activity.
// Partitions are disjoint and together hold every input point; each
// keeps the relative order of its points. Partitions are returned in
// natural order of their category names ("Run 2" before "Run 10").
func PartitionByCategory(points []Point, categoryOf CategoryFunc) ([]Partition, error) {
	byCategory := make(map[string][]Point)

	// cache lookups; there are far fewer activities than points
	cats := make(map[int]string)

	for _, p := range points {
		cat, ok := cats[p.ActivityID]
		if !ok {
			var err error
			cat, err = categoryOf(p.ActivityID)
			if err != nil {
				return nil, err
			}
			cats[p.ActivityID] = cat
		}
		byCategory[cat] = append(byCategory[cat], p)
	}

	names := make([]string, 0, len(byCategory))
	for name := range byCategory {
		names = append(names, name)
	}
	sortCategories(names)

	partitions := make([]Partition, len(names))
	for i, name := range names {
		partitions[i] = Partition{Category: name, Points: byCategory[name]}
	}
	return partitions, nil
}

func sortCategories(names []string) {
	slices.SortFunc(names, func(a, b string) int {
		switch {
		case natural.Less(a, b):
			return -1
		case natural.Less(b, a):
			return 1
		}
		return 0
	})
}

// DedupeOptions configures Deduplicate.
type DedupeOptions struct {
	// Minimum separation in meters, used for both passes.
	// Defaults to DefaultThresholdMeters.
	Threshold float64

	// Optional; called with the category and pass number (1 or 2)
	// before each pass so the caller can set up progress reporting.
	Progress func(category string, pass int) ProgressFunc

	Logger *zap.Logger
}

// PartitionStats counts points through the passes of one partition.
type PartitionStats struct {
	Category string `json:"category"`
	Input    int    `json:"input"`
	Pass1    int    `json:"pass1"`
	Pass2    int    `json:"pass2"`
}

// DedupeResult is the output of Deduplicate.
type DedupeResult struct {
	Points     []Point          `json:"-"`
	Partitions []PartitionStats `json:"partitions"`
}

// Deduplicate partitions points by category and thins each partition
// with two proximity passes at the same threshold: first within each
// activity (stationary jitter), then across the activities of the
// category (routes repeated many times). The partitions' results are
// concatenated in category order.
//
// Pass 1 relies on the points of each activity being contiguous, which
// holds for the output of Ingest and for files written by SavePoints.
func Deduplicate(ctx context.Context, points []Point, categoryOf CategoryFunc, opts DedupeOptions) (DedupeResult, error) {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThresholdMeters
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	progressLog := logger.Named(ProgressLoggerName)

	partitions, err := PartitionByCategory(points, categoryOf)
	if err != nil {
		return DedupeResult{}, err
	}

	var result DedupeResult
	for _, part := range partitions {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		pass := func(in []Point, n int, sameActivity bool) []Point {
			var callerProgress ProgressFunc
			if opts.Progress != nil {
				callerProgress = opts.Progress(part.Category, n)
			}
			fo := FilterOptions{
				MaxDistance:  opts.Threshold,
				SameActivity: sameActivity,
				Progress: func(done, total int) {
					progressLog.Info("filtering",
						zap.String("category", part.Category),
						zap.Int("pass", n),
						zap.Int("done", done),
						zap.Int("total", total))
					if callerProgress != nil {
						callerProgress(done, total)
					}
				},
			}
			return Filter(in, fo)
		}

		pass1 := pass(part.Points, 1, true)
		pass2 := pass(pass1, 2, false)

		logger.Info("filtered category",
			zap.String("category", part.Category),
			zap.Int("input", len(part.Points)),
			zap.Int("pass1_kept", len(pass1)),
			zap.Int("pass2_kept", len(pass2)))

		result.Points = append(result.Points, pass2...)
		result.Partitions = append(result.Partitions, PartitionStats{
			Category: part.Category,
			Input:    len(part.Points),
			Pass1:    len(pass1),
			Pass2:    len(pass2),
		})
	}

	return result, nil
}
