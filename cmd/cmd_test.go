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

package tmcmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/timelinize/trackmap/trackmap"
)

func TestSplitList(t *testing.T) {
	for i, tc := range []struct {
		input  string
		expect []string
	}{
		{input: "kml", expect: []string{"kml"}},
		{input: "kml,geojson", expect: []string{"kml", "geojson"}},
		{input: " kml , png ,", expect: []string{"kml", "png"}},
		{input: "", expect: nil},
		{input: ",,", expect: nil},
	} {
		if diff := cmp.Diff(tc.expect, splitList(tc.input)); diff != "" {
			t.Errorf("Test %d: unexpected list for %q:\n%s", i, tc.input, diff)
		}
	}
}

func TestPrintSummary(t *testing.T) {
	buf := new(bytes.Buffer)
	printSummary(buf, trackmap.Report{}, "out")
	if buf.Len() != 0 {
		t.Errorf("expected nothing for an empty report, got %q", buf)
	}

	printSummary(buf, trackmap.Report{
		RunID: "x",
		Ingest: trackmap.IngestSummary{
			Activities: 5,
			Parsed:     3,
			Failed:     1,
			Skipped:    1,
			RawPoints:  300,
		},
		Partitions: []trackmap.PartitionStats{
			{Category: "Running", Input: 300, Pass1: 200, Pass2: 50},
		},
		FinalPoints: 50,
		Outputs:     []string{"kml"},
		Failures:    []string{"parsing track of activity 2 (b.gpx): EOF"},
	}, "out")

	expected := `Activities: 3 parsed, 1 failed, 1 skipped (of 5)
Running: pass 1 kept 200/300, pass 2 kept 50/200
Points: 300 raw, 50 final
Wrote kml map to out
Failures:
[
  "parsing track of activity 2 (b.gpx): EOF"
]
`
	if diff := cmp.Diff(expected, buf.String()); diff != "" {
		t.Errorf("unexpected summary (-want +got):\n%s", diff)
	}
}

func TestProgressHooks(t *testing.T) {
	buf := new(bytes.Buffer)
	p := &progress{w: buf}
	hooks := p.hooks()

	hooks.Start(3)
	for range 3 {
		hooks.OnResult(trackmap.ActivityResult{})
	}
	if p.bar.GetMax() != 3 {
		t.Errorf("ingest bar max = %d, want 3", p.bar.GetMax())
	}

	report := hooks.Filter("Running", 1)
	report(0, 1200)
	report(500, 1200)
	report(1200, 1200)
	if p.bar.GetMax() != 1200 {
		t.Errorf("filter bar max = %d, want 1200", p.bar.GetMax())
	}
	if !strings.Contains(buf.String(), "Running, pass 1") {
		t.Errorf("expected filter description in output, got %q", buf)
	}

	if disabled := (&progress{disabled: true}).hooks(); disabled.Start != nil || disabled.OnResult != nil || disabled.Filter != nil {
		t.Error("disabled progress should have no hooks")
	}
}
