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
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mholt/archives"
	"go.uber.org/zap"
)

// Format describes a kind of activity export that can be registered,
// such as a RunKeeper or Strava data export.
type Format struct {
	// A snake_cased name that uniquely identifies the format.
	Name string `json:"name"`

	// The human-readable name of the format.
	Title string `json:"title"`

	Description string `json:"description,omitempty"`

	// Recognize reports how confident the format is that it can read
	// the input. It should look only at the index file(s), not parse
	// tracks.
	Recognize func(ctx context.Context, input Input) (Recognition, error) `json:"-"`

	// Open reads the export's index and returns the export.
	Open func(ctx context.Context, input Input) (Export, error) `json:"-"`
}

// Recognition is how well, if at all, a format recognized an input.
type Recognition struct {
	// 0 means not at all, 1 means certainly.
	Confidence float64 `json:"confidence"`
}

// Input is the file system of an export: a directory or an archive
// file such as a .zip, opened without extracting it.
type Input struct {
	FS fs.FS

	// Root is the OS path that FS was opened from.
	Root string
}

// TopDirOpen opens filename in the input, also looking in the single
// top-level directory that archives often wrap their contents in.
func (in Input) TopDirOpen(filename string) (fs.File, error) {
	return archives.TopDirOpen(in.FS, filename)
}

// TopDirStat is like TopDirOpen but only stats the file.
func (in Input) TopDirStat(filename string) (fs.FileInfo, error) {
	return archives.TopDirStat(in.FS, filename)
}

// FileExists returns true if filename exists in the input.
func (in Input) FileExists(filename string) bool {
	_, err := in.TopDirStat(filename)
	return err == nil
}

// OpenTrackFile opens a track file in fsys, also looking in the single
// top directory an archive may wrap its contents in, and decompresses
// it if its name ends in .gz.
func OpenTrackFile(fsys fs.FS, filename string) (io.ReadCloser, error) {
	file, err := archives.TopDirOpen(fsys, filename)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(strings.ToLower(filename), ".gz") {
		return file, nil
	}
	gz, err := archives.Gz{}.OpenReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("opening gzip stream: %w", err)
	}
	return &stackedCloser{ReadCloser: gz, under: file}, nil
}

type stackedCloser struct {
	io.ReadCloser
	under io.Closer
}

func (sc *stackedCloser) Close() error {
	err := sc.ReadCloser.Close()
	if err2 := sc.under.Close(); err == nil {
		err = err2
	}
	return err
}

// Export is an opened activity export.
type Export interface {
	ActivityIndex
	TrackFileReader
	io.Closer
}

// NewExport combines an index and a reader into an Export whose Close
// does nothing.
func NewExport(index ActivityIndex, reader TrackFileReader) Export {
	return export{index, reader}
}

type export struct {
	ActivityIndex
	TrackFileReader
}

func (export) Close() error { return nil }

var (
	formats   = make(map[string]Format)
	formatsMu sync.RWMutex
)

// RegisterFormat registers f. It is meant to be called from init.
func RegisterFormat(f Format) error {
	if f.Name == "" {
		return errors.New("missing name")
	}
	if f.Title == "" {
		return errors.New("missing title")
	}
	if f.Recognize == nil || f.Open == nil {
		return fmt.Errorf("format %s: missing Recognize or Open", f.Name)
	}
	formatsMu.Lock()
	defer formatsMu.Unlock()
	if _, ok := formats[f.Name]; ok {
		return fmt.Errorf("format already registered: %s", f.Name)
	}
	formats[f.Name] = f
	return nil
}

// GetFormat returns the format with the given name.
func GetFormat(name string) (Format, error) {
	formatsMu.RLock()
	defer formatsMu.RUnlock()
	f, ok := formats[name]
	if !ok {
		return Format{}, fmt.Errorf("format not found: %s", name)
	}
	return f, nil
}

// AllFormats returns all registered formats sorted by name.
func AllFormats() []Format {
	formatsMu.RLock()
	all := make([]Format, 0, len(formats))
	for _, f := range formats {
		all = append(all, f)
	}
	formatsMu.RUnlock()
	sort.Slice(all, func(i, j int) bool {
		return all[i].Name < all[j].Name
	})
	return all
}

// OpenInput opens the directory or archive at root.
func OpenInput(ctx context.Context, root string) (Input, error) {
	fsys, err := archives.FileSystem(ctx, root, nil)
	if err != nil {
		return Input{}, fmt.Errorf("opening %s: %w", root, err)
	}
	return Input{FS: fsys, Root: root}, nil
}

// OpenExport opens the export at root with the named format. If
// formatName is empty, every registered format is asked to recognize
// the input and the most confident one is used.
func OpenExport(ctx context.Context, root, formatName string) (Export, Format, error) {
	input, err := OpenInput(ctx, root)
	if err != nil {
		return nil, Format{}, err
	}

	var f Format
	if formatName != "" {
		f, err = GetFormat(formatName)
		if err != nil {
			return nil, Format{}, err
		}
	} else {
		f, err = recognize(ctx, input)
		if err != nil {
			return nil, Format{}, err
		}
	}

	exp, err := f.Open(ctx, input)
	if err != nil {
		return nil, f, fmt.Errorf("opening %s export %s: %w", f.Name, root, err)
	}
	return exp, f, nil
}

func recognize(ctx context.Context, input Input) (Format, error) {
	logger := Log.Named("format")

	var best Format
	var bestConfidence float64
	for _, f := range AllFormats() {
		rec, err := f.Recognize(ctx, input)
		if err != nil {
			logger.Debug("recognizing input",
				zap.String("format", f.Name),
				zap.String("input", input.Root),
				zap.Error(err))
			continue
		}
		if rec.Confidence > bestConfidence {
			best, bestConfidence = f, rec.Confidence
		}
	}
	if bestConfidence == 0 {
		return Format{}, fmt.Errorf("no format recognized %s", filepath.Base(input.Root))
	}
	logger.Info("recognized input",
		zap.String("format", best.Name),
		zap.String("input", input.Root),
		zap.Float64("confidence", bestConfidence))
	return best, nil
}
