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

// ProgressFunc receives the number of anchor positions scanned so far
// and the total number of positions.
type ProgressFunc func(done, total int)

// DefaultProgressEvery is how often (in scanned positions) progress is
// reported if FilterOptions.ProgressEvery is not set.
const DefaultProgressEvery = 500

// FilterOptions configures a proximity filter pass.
type FilterOptions struct {
	// Points closer than this many meters to an earlier kept point
	// are removed.
	MaxDistance float64

	// Only compare points of the same activity. The input MUST be
	// grouped by activity (all points of an activity contiguous):
	// the scan for an anchor stops at the first point of another
	// activity, so ungrouped input silently keeps points that a
	// cross-activity pass would remove. The filter does not reorder
	// or check the input.
	SameActivity bool

	// Optional progress reporting; it does not affect the result.
	Progress      ProgressFunc
	ProgressEvery int
}

// RemoveWithinRange is a shortcut for Filter without progress reporting.
func RemoveWithinRange(points []Point, maxDistance float64, sameActivity bool) []Point {
	return Filter(points, FilterOptions{MaxDistance: maxDistance, SameActivity: sameActivity})
}

// Filter returns the points that are not within opts.MaxDistance meters
// of an earlier surviving point, in their original order. The input
// slice is not modified.
//
// Positions are scanned in order. A position that is still kept
// becomes an anchor and suppresses every later kept position closer
// than MaxDistance to it. Suppressed positions never act as anchors,
// so suppression is not transitive: a point near a suppressed neighbor
// but far from every anchor survives.
//
// This is O(n²) distance computations in the worst case with no
// spatial index, which is fine for the few thousand points per
// category seen in practice but will not scale to millions.
func Filter(points []Point, opts FilterOptions) []Point {
	n := len(points)
	every := opts.ProgressEvery
	if every <= 0 {
		every = DefaultProgressEvery
	}

	keep := make([]bool, n)
	for i := range keep {
		keep[i] = true
	}

	for i := range n {
		if opts.Progress != nil && i%every == 0 {
			opts.Progress(i, n)
		}
		if !keep[i] {
			continue
		}
		anchor := points[i]
		for j := i + 1; j < n; j++ {
			if opts.SameActivity && points[j].ActivityID != anchor.ActivityID {
				break
			}
			if keep[j] && GreatCircleDistance(anchor, points[j]) < opts.MaxDistance {
				keep[j] = false
			}
		}
	}
	if opts.Progress != nil {
		opts.Progress(n, n)
	}

	kept := make([]Point, 0, n)
	for i, p := range points {
		if keep[i] {
			kept = append(kept, p)
		}
	}
	return kept
}
