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
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Output is a named render sink, e.g. "kml" writing heatmap.kml.
type Output struct {
	Name string
	Sink RenderSink
}

// RunOptions configures Run.
type RunOptions struct {
	Ingest IngestOptions
	Dedupe DedupeOptions

	// If set, the merged points are written to RawPointsFile and the
	// final points to ProcessedPointsFile in this directory.
	WorkDir string

	// If set, ingestion is skipped and the points are loaded from here
	// instead, e.g. a rawpoints.csv saved by an earlier run.
	Points PointSource

	Outputs []Output

	Logger *zap.Logger
}

// Report summarizes a run.
type Report struct {
	RunID       string           `json:"run_id"`
	Input       string           `json:"input,omitempty"`
	Format      string           `json:"format,omitempty"`
	Started     time.Time        `json:"started"`
	Finished    time.Time        `json:"finished"`
	Categories  []string         `json:"categories"`
	Ingest      IngestSummary    `json:"ingest"`
	Partitions  []PartitionStats `json:"partitions"`
	FinalPoints int              `json:"final_points"`
	Failures    []string         `json:"failures,omitempty"`
	Outputs     []string         `json:"outputs,omitempty"`
}

// Run loads the activities of index, ingests their tracks with reader,
// removes redundant points per category and hands the result to each
// output. Per-activity failures end up in the report; the returned
// error is non-nil only if the run as a whole failed.
func Run(ctx context.Context, index ActivityIndex, reader TrackFileReader, opts RunOptions) (Report, []Point, error) {
	report := Report{
		RunID:      uuid.NewString(),
		Started:    time.Now(),
		Categories: Categories(index),
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("run_id", report.RunID))
	if opts.Ingest.Logger == nil {
		opts.Ingest.Logger = logger.Named("ingest")
	}
	if opts.Dedupe.Logger == nil {
		opts.Dedupe.Logger = logger.Named("dedupe")
	}

	var points []Point
	if opts.Points != nil {
		var err error
		points, err = opts.Points.LoadPoints()
		if err != nil {
			return report, nil, fmt.Errorf("loading points: %w", err)
		}
		report.Ingest.RawPoints = len(points)
		report.Ingest.KeptPoints = len(points)
		logger.Info("loaded points", zap.Int("points", len(points)))
	} else {
		descriptors := index.Activities()
		logger.Info("ingesting activities",
			zap.Int("activities", len(descriptors)),
			zap.Strings("categories", report.Categories))

		ingested, err := Ingest(ctx, descriptors, reader, opts.Ingest)
		report.Ingest = ingested.Summary
		for _, f := range ingested.Failures {
			report.Failures = append(report.Failures, f.Error())
		}
		if err != nil {
			report.Finished = time.Now()
			return report, nil, fmt.Errorf("ingesting activities: %w", err)
		}
		points = ingested.Points

		if opts.WorkDir != "" {
			if err := PointFile(filepath.Join(opts.WorkDir, RawPointsFile)).SavePoints(points); err != nil {
				return report, nil, fmt.Errorf("saving raw points: %w", err)
			}
		}
	}

	deduped, err := Deduplicate(ctx, points, index.CategoryOf, opts.Dedupe)
	report.Partitions = deduped.Partitions
	if err != nil {
		report.Finished = time.Now()
		return report, nil, fmt.Errorf("removing redundant points: %w", err)
	}
	points = deduped.Points
	report.FinalPoints = len(points)

	if opts.WorkDir != "" {
		if err := PointFile(filepath.Join(opts.WorkDir, ProcessedPointsFile)).SavePoints(points); err != nil {
			return report, nil, fmt.Errorf("saving processed points: %w", err)
		}
	}

	for _, out := range opts.Outputs {
		if err := out.Sink.Render(ctx, points, index.CategoryOf); err != nil {
			report.Finished = time.Now()
			return report, points, fmt.Errorf("rendering %s: %w", out.Name, err)
		}
		report.Outputs = append(report.Outputs, out.Name)
	}

	report.Finished = time.Now()
	logger.Info("run complete",
		zap.Int("raw_points", report.Ingest.RawPoints),
		zap.Int("final_points", report.FinalPoints),
		zap.Int("failed", report.Ingest.Failed),
		zap.Int("skipped", report.Ingest.Skipped),
		zap.Strings("outputs", report.Outputs),
		zap.Duration("duration", report.Finished.Sub(report.Started)))

	return report, points, nil
}
