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

// Package strava reads Strava account exports.
package strava

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
		Name:        "strava",
		Title:       "Strava",
		Description: "A Strava account export.",
		Recognize:   Recognize,
		Open:        Open,
	})
	if err != nil {
		trackmap.Log.Fatal("registering format", zap.Error(err))
	}
}

// Recognize returns whether the input is a Strava export.
func Recognize(_ context.Context, input trackmap.Input) (trackmap.Recognition, error) {
	for _, expectedFile := range []string{
		"activities.csv",
		"profile.csv",
	} {
		if !input.FileExists(expectedFile) {
			return trackmap.Recognition{}, nil
		}
	}
	return trackmap.Recognition{Confidence: 1}, nil
}

// Open reads activities.csv from the export.
func Open(ctx context.Context, input trackmap.Input) (trackmap.Export, error) {
	activitiesFile, err := input.TopDirOpen("activities.csv")
	if err != nil {
		return nil, err
	}
	defer activitiesFile.Close()

	activities, err := ReadIndex(ctx, activitiesFile, trackmap.Log.Named("strava"))
	if err != nil {
		return nil, fmt.Errorf("reading activities.csv: %w", err)
	}
	return trackmap.NewExport(trackmap.NewStaticIndex(activities), gpx.Reader{FS: input.FS}), nil
}

// DateLayout is how activities.csv formats the Activity Date column.
const DateLayout = "Jan 2, 2006, 3:04:05 PM"

// ReadIndex reads the activities of a Strava activities.csv. Only
// activities whose track is a GPX file (plain or gzipped) are indexed;
// Strava also exports .fit and .tcx tracks, which are logged and
// skipped. Activity IDs are positions among the indexed activities.
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
	var noTrack, unsupported int

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

		// use header row to give us order-independent access to named fields
		if len(fields) == 0 {
			for i, name := range rec {
				// some field names are repeated; the later ones are more precise
				fields[name] = i
			}
			for _, required := range []string{"Activity Type", "Filename"} {
				if _, ok := fields[required]; !ok {
					return nil, fmt.Errorf("missing %q column", required)
				}
			}
			continue
		}

		filename := field(rec, "Filename")
		if filename == "" {
			noTrack++
			continue
		}
		if !gpx.IsTrackFile(filename) {
			unsupported++
			logger.Debug("skipping activity with unsupported track format",
				zap.String("activity_id", field(rec, "Activity ID")),
				zap.String("filename", filename))
			continue
		}

		act := trackmap.ActivityDescriptor{
			ID:         len(activities),
			Category:   field(rec, "Activity Type"),
			SourceFile: filename,
			Name:       field(rec, "Activity Name"),
			ExternalID: field(rec, "Activity ID"),
		}
		if date := field(rec, "Activity Date"); date != "" {
			if ts, err := time.Parse(DateLayout, date); err == nil {
				act.Date = ts
			}
		}
		activities = append(activities, act)
	}

	logger.Info("read activity index",
		zap.Int("activities", len(activities)),
		zap.Int("without_track", noTrack),
		zap.Int("unsupported_track", unsupported))

	return activities, nil
}
