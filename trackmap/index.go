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
	"time"
)

// ActivityDescriptor describes one recorded activity in an export.
type ActivityDescriptor struct {
	// ID is the activity's position in the export's index.
	ID int `json:"id"`

	// Category is the kind of activity, e.g. "Running" or "Cycling".
	Category string `json:"category"`

	// SourceFile is the path of the track file within the export's
	// file system.
	SourceFile string `json:"source_file"`

	// Optional information from the index; not used by the core.
	Name       string    `json:"name,omitempty"`
	Date       time.Time `json:"date,omitzero"`
	ExternalID string    `json:"external_id,omitempty"`
}

// CategoryFunc maps an activity ID to its category. It must return a
// *LookupError for unknown IDs.
type CategoryFunc func(activityID int) (string, error)

// ActivityIndex lists the activities of an export.
type ActivityIndex interface {
	Activities() []ActivityDescriptor
	CategoryOf(activityID int) (string, error)
}

// TrackFileReader parses the track of one activity. Failures should be
// reported as *ParseError. Implementations must be safe for concurrent
// use, since ingestion workers share one reader.
type TrackFileReader interface {
	ParseOne(ctx context.Context, activity ActivityDescriptor) ([]Point, error)
}

// TrackFileReaderFunc adapts a function to the TrackFileReader interface.
type TrackFileReaderFunc func(ctx context.Context, activity ActivityDescriptor) ([]Point, error)

func (f TrackFileReaderFunc) ParseOne(ctx context.Context, activity ActivityDescriptor) ([]Point, error) {
	return f(ctx, activity)
}

// PointSink persists a point sequence.
type PointSink interface {
	SavePoints(points []Point) error
}

// PointSource reloads a persisted point sequence.
type PointSource interface {
	LoadPoints() ([]Point, error)
}

// RenderSink turns the final points into a map artifact.
type RenderSink interface {
	Render(ctx context.Context, points []Point, categoryOf CategoryFunc) error
}

// StaticIndex is an ActivityIndex backed by a slice of descriptors.
// Descriptor IDs must be unique.
type StaticIndex struct {
	activities []ActivityDescriptor
	byID       map[int]int
}

// NewStaticIndex returns an index over activities.
func NewStaticIndex(activities []ActivityDescriptor) *StaticIndex {
	idx := &StaticIndex{
		activities: activities,
		byID:       make(map[int]int, len(activities)),
	}
	for i, a := range activities {
		idx.byID[a.ID] = i
	}
	return idx
}

// Activities returns the activities in index order.
func (idx *StaticIndex) Activities() []ActivityDescriptor { return idx.activities }

// CategoryOf returns the category of the activity with the given ID.
func (idx *StaticIndex) CategoryOf(activityID int) (string, error) {
	i, ok := idx.byID[activityID]
	if !ok {
		return "", &LookupError{ActivityID: activityID}
	}
	return idx.activities[i].Category, nil
}

// Categories returns the distinct categories in the index.
func Categories(index ActivityIndex) []string {
	seen := make(map[string]struct{})
	var cats []string
	for _, a := range index.Activities() {
		if _, ok := seen[a.Category]; ok {
			continue
		}
		seen[a.Category] = struct{}{}
		cats = append(cats, a.Category)
	}
	sortCategories(cats)
	return cats
}
