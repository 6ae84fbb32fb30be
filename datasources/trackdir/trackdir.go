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

// Package trackdir reads a folder or archive of loose track files as
// an export. Subfolders are categories, so a folder laid out like
//
//	Running/2020-01-01.gpx
//	Running/2020-01-03.kml
//	Cycling/commute.nmea
//
// yields two categories of activities, one activity per file.
package trackdir

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/timelinize/trackmap/datasources/geojson"
	"github.com/timelinize/trackmap/datasources/gpx"
	"github.com/timelinize/trackmap/datasources/kmlgx"
	nmea0183 "github.com/timelinize/trackmap/datasources/nmea"
	"github.com/timelinize/trackmap/trackmap"
	"go.uber.org/zap"
)

func init() {
	err := trackmap.RegisterFormat(trackmap.Format{
		Name:        "trackdir",
		Title:       "Track folder",
		Description: "A folder or archive of GPX, KML, GeoJSON or NMEA files, grouped into categories by subfolder",
		Recognize:   Recognize,
		Open:        Open,
	})
	if err != nil {
		trackmap.Log.Fatal("registering format", zap.Error(err))
	}
}

// OtherCategory is used for tracks at the top of the folder that do
// not declare a type.
const OtherCategory = "Other"

type readFunc func(ctx context.Context, r io.Reader, activityID int) ([]trackmap.Point, error)

// readers by file extension; any of them may also be gzipped
var readers = map[string]readFunc{
	".gpx":     gpx.ReadPoints,
	".kml":     kmlgx.ReadPoints,
	".geojson": geojson.ReadPoints,
	".nmea":    nmea0183.ReadPoints,
	".nme":     nmea0183.ReadPoints,
}

func trackExt(filename string) string {
	return path.Ext(strings.TrimSuffix(strings.ToLower(filename), ".gz"))
}

// IsTrackFile reports whether filename has the extension of a
// supported track file.
func IsTrackFile(filename string) bool {
	_, ok := readers[trackExt(filename)]
	return ok
}

// Reader is a trackmap.TrackFileReader for track files of any
// supported type, chosen by file extension.
type Reader struct {
	FS fs.FS
}

// ParseOne reads the track file of the activity.
func (r Reader) ParseOne(ctx context.Context, act trackmap.ActivityDescriptor) ([]trackmap.Point, error) {
	points, err := r.parse(ctx, act)
	if err != nil {
		return nil, &trackmap.ParseError{ActivityID: act.ID, Path: act.SourceFile, Err: err}
	}
	return points, nil
}

func (r Reader) parse(ctx context.Context, act trackmap.ActivityDescriptor) ([]trackmap.Point, error) {
	read, ok := readers[trackExt(act.SourceFile)]
	if !ok {
		return nil, fmt.Errorf("unsupported track file type %q", trackExt(act.SourceFile))
	}
	rc, err := trackmap.OpenTrackFile(r.FS, act.SourceFile)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return read(ctx, rc, act.ID)
}

// Recognize returns 0.9 times the fraction of non-hidden files that are
// track files, so that a format which positively identifies its index
// file always wins.
func Recognize(ctx context.Context, input trackmap.Input) (trackmap.Recognition, error) {
	var total, matches int
	err := walkTracks(ctx, input.FS, func(_ string, isTrack bool) error {
		total++
		if isTrack {
			matches++
		}
		return nil
	})
	if err != nil {
		return trackmap.Recognition{}, err
	}
	var confidence float64
	if total > 0 {
		confidence = 0.9 * float64(matches) / float64(total)
	}
	return trackmap.Recognition{Confidence: confidence}, nil
}

// Open indexes every track file in lexical path order. The category of
// a track is the name of its folder or, for a GPX track at the top
// level, the track's own <type>.
func Open(ctx context.Context, input trackmap.Input) (trackmap.Export, error) {
	var activities []trackmap.ActivityDescriptor
	err := walkTracks(ctx, input.FS, func(fpath string, isTrack bool) error {
		if !isTrack {
			return nil
		}
		act := trackmap.ActivityDescriptor{
			ID:         len(activities),
			SourceFile: fpath,
			Category:   path.Base(path.Dir(fpath)),
		}
		if path.Dir(fpath) == "." {
			act.Category, act.Name = trackHeader(ctx, input.FS, fpath)
		}
		activities = append(activities, act)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return trackmap.NewExport(trackmap.NewStaticIndex(activities), Reader{FS: input.FS}), nil
}

// trackHeader reads just far enough into a GPX file to find the type
// and name of its track.
func trackHeader(ctx context.Context, fsys fs.FS, fpath string) (category, name string) {
	category = OtherCategory
	if trackExt(fpath) != ".gpx" {
		return
	}
	rc, err := trackmap.OpenTrackFile(fsys, fpath)
	if err != nil {
		return
	}
	defer rc.Close()

	dec := gpx.NewDecoder(rc)
	if _, err := dec.Next(ctx); err != nil {
		return
	}
	if dec.TrackType != "" {
		category = dec.TrackType
	}
	return category, dec.TrackName
}

func walkTracks(ctx context.Context, fsys fs.FS, fn func(fpath string, isTrack bool) error) error {
	return fs.WalkDir(fsys, ".", func(fpath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if fpath != "." && strings.HasPrefix(path.Base(fpath), ".") {
			// skip hidden files
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		return fn(fpath, IsTrackFile(fpath))
	})
}
