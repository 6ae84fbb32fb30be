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

// Package runkeeper reads RunKeeper data exports.
package runkeeper

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/timelinize/trackmap/datasources/gpx"
	"github.com/timelinize/trackmap/trackmap"
	"go.uber.org/zap"
)

func init() {
	err := trackmap.RegisterFormat(trackmap.Format{
		Name:        "runkeeper",
		Title:       "RunKeeper",
		Description: "A RunKeeper data export (.zip or extracted folder).",
		Recognize:   Recognize,
		Open:        Open,
	})
	if err != nil {
		trackmap.Log.Fatal("registering format", zap.Error(err))
	}
}

// IndexFile is the name of the activity index in an export.
const IndexFile = "cardioActivities.csv"

// Recognize returns whether the input is a RunKeeper export.
func Recognize(_ context.Context, input trackmap.Input) (trackmap.Recognition, error) {
	if input.FileExists(IndexFile) {
		return trackmap.Recognition{Confidence: 1}, nil
	}
	return trackmap.Recognition{}, nil
}

// Open reads the activity index of the export.
func Open(ctx context.Context, input trackmap.Input) (trackmap.Export, error) {
	f, err := input.TopDirOpen(IndexFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	activities, err := ReadIndex(ctx, f, trackmap.Log.Named("runkeeper"))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", IndexFile, err)
	}
	return trackmap.NewExport(trackmap.NewStaticIndex(activities), gpx.Reader{FS: input.FS}), nil
}

// DateLayout is how the index formats the Date column.
const DateLayout = "2006-01-02 15:04:05"

// ReadIndex reads a cardioActivities.csv. The first row names the
// fields. Activities without a GPX file (manually entered ones) are
// dropped, and the ID of each remaining activity is its position among
// them. The Type column is the category.
func ReadIndex(ctx context.Context, r io.Reader, logger *zap.Logger) ([]trackmap.ActivityDescriptor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	fields := make(map[string]int)
	field := func(rec []string, name string) string {
		i, ok := fields[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var activities []trackmap.ActivityDescriptor
	var dropped int

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		if len(fields) == 0 {
			for i, name := range rec {
				fields[strings.TrimSpace(name)] = i
			}
			for _, required := range []string{"Type", "GPX File"} {
				if _, ok := fields[required]; !ok {
					return nil, fmt.Errorf("missing %q column", required)
				}
			}
			continue
		}

		gpxFile := field(rec, "GPX File")
		if gpxFile == "" {
			dropped++
			continue
		}

		act := trackmap.ActivityDescriptor{
			ID:         len(activities),
			Category:   field(rec, "Type"),
			SourceFile: gpxFile,
			Name:       field(rec, "Route Name"),
			ExternalID: field(rec, "Activity Id"),
		}
		if ts, err := time.Parse(DateLayout, field(rec, "Date")); err == nil {
			act.Date = ts
		}
		activities = append(activities, act)
	}

	logger.Info("read activity index",
		zap.Int("activities", len(activities)),
		zap.Int("without_gpx", dropped))

	return activities, nil
}
