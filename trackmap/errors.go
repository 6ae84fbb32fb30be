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
	"errors"
	"fmt"
)

// ErrUnknownActivity is matched (via errors.Is) by every LookupError.
var ErrUnknownActivity = errors.New("activity not in index")

// GeometryDomainError reports a distance computation whose
// intermediate value left the domain of the inverse cosine and could
// not be recovered by clamping (i.e. it was NaN).
type GeometryDomainError struct {
	A, B Point
	Arg  float64
}

func (e *GeometryDomainError) Error() string {
	return fmt.Sprintf("great-circle distance undefined between %s and %s (acos argument %v)", e.A, e.B, e.Arg)
}

// ParseError means an activity's track file could not be turned into
// points: it was missing, unreadable, or malformed.
type ParseError struct {
	ActivityID int
	Path       string
	Err        error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing track of activity %d (%s): %v", e.ActivityID, e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// LookupError means a point references an activity that the activity
// index does not know, which usually means stale intermediate files.
type LookupError struct {
	ActivityID int
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("activity %d: %v", e.ActivityID, ErrUnknownActivity)
}

func (e *LookupError) Is(target error) bool { return target == ErrUnknownActivity }

// WorkerError means an ingestion worker failed to produce a result for
// an activity in an orderly way (it panicked or ran out of time).
type WorkerError struct {
	Worker     int
	ActivityID int
	Panic      any   // set if the worker panicked
	Err        error // set for timeouts and cancellation
}

func (e *WorkerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("worker %d panicked on activity %d: %v", e.Worker, e.ActivityID, e.Panic)
	}
	return fmt.Sprintf("worker %d gave no result for activity %d: %v", e.Worker, e.ActivityID, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }
