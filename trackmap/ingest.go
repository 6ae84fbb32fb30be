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
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FailurePolicy decides what happens to a batch when one activity fails.
type FailurePolicy int

const (
	// SkipFailed records the failure and continues with the other activities.
	SkipFailed FailurePolicy = iota

	// AbortOnError stops handing out work after the first failure and
	// returns that failure once the workers have exited.
	AbortOnError
)

func (fp FailurePolicy) String() string {
	if fp == AbortOnError {
		return "abort"
	}
	return "skip"
}

// ParseFailurePolicy parses "skip" or "abort"; the empty string is "skip".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "skip":
		return SkipFailed, nil
	case "abort":
		return AbortOnError, nil
	}
	return SkipFailed, fmt.Errorf("unknown failure policy %q (want skip or abort)", s)
}

// IngestOptions configures Ingest.
type IngestOptions struct {
	// Number of concurrent workers; defaults to the number of CPUs.
	Parallelism int

	// If > 0, each activity's points are thinned by a same-activity
	// proximity pass at this distance (meters) inside the worker,
	// before they are merged. This only shrinks the data early;
	// Deduplicate's first pass would remove the same points.
	PreFilterDistance float64

	// If > 0, an activity whose track takes longer than this to parse
	// is reported as a *WorkerError and its worker moves on. By
	// default there is no limit and a reader that never returns
	// stalls the whole batch.
	ActivityTimeout time.Duration

	Policy FailurePolicy

	// Optional; called from the collecting goroutine for each result,
	// in completion order.
	OnResult func(ActivityResult)

	Logger *zap.Logger
}

// ActivityResult is what a worker reports for one activity.
type ActivityResult struct {
	Activity ActivityDescriptor
	Worker   int
	Points   []Point // after the optional pre-filter
	Parsed   int     // number of points parsed from the track
	Err      error
	Skipped  bool // not attempted because the batch was canceled
}

// IngestSummary counts what happened to a batch.
type IngestSummary struct {
	Activities int           `json:"activities"`
	Parsed     int           `json:"parsed"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	RawPoints  int           `json:"raw_points"`
	KeptPoints int           `json:"kept_points"`
	Duration   time.Duration `json:"duration"`
}

// IngestResult is the output of Ingest.
type IngestResult struct {
	// Points of all successfully parsed activities. The points of one
	// activity are contiguous and in track order, but the activities
	// appear in the order their workers finished, which is not the
	// order of the descriptors and differs from run to run.
	Points []Point

	Summary  IngestSummary
	Failures []error
}

// How often, in finished activities, Ingest logs its progress.
const ingestProgressEvery = 50

// Ingest parses the track of every descriptor with a pool of workers
// and merges their points.
//
// Descriptors are handed out one at a time over a shared queue to
// whichever worker is free; closing the queue after the last one is
// each worker's signal to stop. Every worker sends exactly one result
// per descriptor it takes, including failures and panics, so the
// collector always hears back about every activity it handed out.
// Ingest returns after all workers have exited.
//
// With SkipFailed (the default) failures are collected in the result
// and the returned error is nil unless ctx was canceled. With
// AbortOnError the first failure is returned.
func Ingest(ctx context.Context, descriptors []ActivityDescriptor, reader TrackFileReader, opts IngestOptions) (IngestResult, error) {
	start := time.Now()

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := opts.Parallelism
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	workers = max(1, min(workers, len(descriptors)))

	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan ActivityDescriptor)
	results := make(chan ActivityResult, workers)

	wg := new(sync.WaitGroup)
	for i := range workers {
		wg.Add(1)
		go func(workerNum int) {
			defer wg.Done()
			for act := range queue {
				results <- ingestOne(batchCtx, workerNum, act, reader, opts)
			}
		}(i)
	}

	go func() {
		defer close(queue)
		for _, act := range descriptors {
			select {
			case queue <- act:
			case <-batchCtx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	progressLog := logger.Named(ProgressLoggerName)

	out := IngestResult{Summary: IngestSummary{Activities: len(descriptors)}}
	var abortErr error
	var received int

	for res := range results {
		received++
		if opts.OnResult != nil {
			opts.OnResult(res)
		}
		if received%ingestProgressEvery == 0 || received == len(descriptors) {
			progressLog.Info("ingesting",
				zap.Int("done", received),
				zap.Int("total", len(descriptors)))
		}

		switch {
		case res.Skipped:
			out.Summary.Skipped++

		case res.Err != nil:
			out.Summary.Failed++
			out.Failures = append(out.Failures, res.Err)
			logger.Error("activity failed",
				zap.Int("activity_id", res.Activity.ID),
				zap.String("file", res.Activity.SourceFile),
				zap.Int("worker", res.Worker),
				zap.Error(res.Err))
			if opts.Policy == AbortOnError && abortErr == nil {
				abortErr = res.Err
				cancel()
			}

		default:
			out.Summary.Parsed++
			out.Summary.RawPoints += res.Parsed
			out.Summary.KeptPoints += len(res.Points)
			out.Points = append(out.Points, res.Points...)
			logger.Debug("activity parsed",
				zap.Int("activity_id", res.Activity.ID),
				zap.String("category", res.Activity.Category),
				zap.Int("worker", res.Worker),
				zap.Int("points", res.Parsed),
				zap.Int("kept", len(res.Points)))
		}
	}

	// activities never handed out because the batch was canceled
	out.Summary.Skipped += len(descriptors) - received
	out.Summary.Duration = time.Since(start)

	logger.Info("ingested activities",
		zap.Int("activities", out.Summary.Activities),
		zap.Int("parsed", out.Summary.Parsed),
		zap.Int("failed", out.Summary.Failed),
		zap.Int("skipped", out.Summary.Skipped),
		zap.Int("raw_points", out.Summary.RawPoints),
		zap.Int("kept_points", out.Summary.KeptPoints),
		zap.Int("workers", workers),
		zap.Duration("duration", out.Summary.Duration))

	if abortErr != nil {
		return out, abortErr
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}

// ingestOne parses and pre-filters one activity. It never panics.
func ingestOne(ctx context.Context, worker int, act ActivityDescriptor, reader TrackFileReader, opts IngestOptions) ActivityResult {
	res := ActivityResult{Activity: act, Worker: worker}

	if err := ctx.Err(); err != nil {
		res.Skipped = true
		res.Err = err
		return res
	}

	var points []Point
	var err error
	if opts.ActivityTimeout > 0 {
		points, err = parseWithTimeout(ctx, reader, act, opts.ActivityTimeout)
	} else {
		points, err = safeParse(ctx, reader, act)
	}

	if err != nil {
		var pe panicError
		switch {
		case errors.As(err, &pe):
			err = &WorkerError{Worker: worker, ActivityID: act.ID, Panic: pe.val}
		case errors.Is(err, errTimeout):
			err = &WorkerError{Worker: worker, ActivityID: act.ID, Err: context.DeadlineExceeded}
		case ctx.Err() != nil && errors.Is(err, ctx.Err()):
			// abandoned because the batch was canceled; a real failure
			// that merely arrives after the cancellation still counts
			res.Skipped = true
		default:
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				err = &ParseError{ActivityID: act.ID, Path: act.SourceFile, Err: err}
			}
		}
		res.Err = err
		return res
	}

	res.Parsed = len(points)
	if opts.PreFilterDistance > 0 {
		points = Filter(points, FilterOptions{MaxDistance: opts.PreFilterDistance, SameActivity: true})
	}
	res.Points = points
	return res
}

var errTimeout = errors.New("activity timed out")

type panicError struct{ val any }

func (pe panicError) Error() string { return fmt.Sprintf("panic: %v", pe.val) }

// safeParse calls the reader, converting a panic into a panicError.
func safeParse(ctx context.Context, reader TrackFileReader, act ActivityDescriptor) (points []Point, err error) {
	defer func() {
		if r := recover(); r != nil {
			points, err = nil, panicError{val: r}
		}
	}()
	return reader.ParseOne(ctx, act)
}

// parseWithTimeout runs the reader in its own goroutine so that the
// worker can give up on it even if the reader ignores its context.
// An abandoned reader keeps running until it returns on its own.
func parseWithTimeout(ctx context.Context, reader TrackFileReader, act ActivityDescriptor, timeout time.Duration) ([]Point, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type parsed struct {
		points []Point
		err    error
	}
	done := make(chan parsed, 1)
	go func() {
		points, err := safeParse(ctx, reader, act)
		done <- parsed{points, err}
	}()

	select {
	case p := <-done:
		if p.err != nil && errors.Is(p.err, context.DeadlineExceeded) && ctx.Err() != nil {
			return nil, errTimeout
		}
		return p.points, p.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errTimeout
		}
		return nil, ctx.Err()
	}
}
