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
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// listFormat is an export of a list.txt naming one track per line
// as "category file".
func init() {
	err := RegisterFormat(Format{
		Name:  "test_list",
		Title: "Test list",
		Recognize: func(_ context.Context, input Input) (Recognition, error) {
			if input.FileExists("list.txt") {
				return Recognition{Confidence: 1}, nil
			}
			return Recognition{}, nil
		},
		Open: func(_ context.Context, input Input) (Export, error) {
			f, err := input.TopDirOpen("list.txt")
			if err != nil {
				return nil, err
			}
			defer f.Close()
			var acts []ActivityDescriptor
			sc := bufio.NewScanner(f)
			for sc.Scan() {
				category, file, _ := strings.Cut(sc.Text(), " ")
				acts = append(acts, ActivityDescriptor{ID: len(acts), Category: category, SourceFile: file})
			}
			return NewExport(NewStaticIndex(acts), TrackFileReaderFunc(fakeTrack)), sc.Err()
		},
	})
	if err != nil {
		panic(err)
	}
}

func TestRegisterFormat(t *testing.T) {
	for i, tc := range []Format{
		{},
		{Name: "no_title"},
		{Name: "no_funcs", Title: "No funcs"},
		{Name: "test_list", Title: "Duplicate", Recognize: func(context.Context, Input) (Recognition, error) {
			return Recognition{}, nil
		}, Open: func(context.Context, Input) (Export, error) { return nil, nil }},
	} {
		if err := RegisterFormat(tc); err == nil {
			t.Errorf("Test %d: expected error registering %q", i, tc.Name)
		}
	}

	if _, err := GetFormat("test_list"); err != nil {
		t.Errorf("GetFormat: %v", err)
	}
	if _, err := GetFormat("nope"); err == nil {
		t.Error("expected error getting unregistered format")
	}
}

func TestOpenExport(t *testing.T) {
	dir := t.TempDir()
	list := "Running a.gpx\nCycling b.gpx\nRunning c.gpx\n"
	if err := os.WriteFile(filepath.Join(dir, "list.txt"), []byte(list), 0600); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()

	// by recognition, and by name
	for _, name := range []string{"", "test_list"} {
		exp, f, err := OpenExport(ctx, dir, name)
		if err != nil {
			t.Fatalf("format %q: unexpected error: %v", name, err)
		}
		if f.Name != "test_list" {
			t.Errorf("format %q: opened as %q", name, f.Name)
		}
		if n := len(exp.Activities()); n != 3 {
			t.Errorf("format %q: got %d activities, want 3", name, n)
		}
		if cat, err := exp.CategoryOf(1); err != nil || cat != "Cycling" {
			t.Errorf("format %q: CategoryOf(1) = (%q, %v)", name, cat, err)
		}
		if err := exp.Close(); err != nil {
			t.Errorf("format %q: closing: %v", name, err)
		}
	}

	if _, _, err := OpenExport(ctx, t.TempDir(), ""); err == nil {
		t.Error("expected error for an unrecognized input")
	}
}
