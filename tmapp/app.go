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

// Package tmapp ties together export formats, the track cache,
// the pipeline and the renderers into runs, and serves their results.
package tmapp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/timelinize/trackmap/internal/trackcache"
	"github.com/timelinize/trackmap/render"
	"github.com/timelinize/trackmap/trackmap"
	"go.uber.org/zap"
)

// ReportFile is the name of the run report in the work directory.
const ReportFile = "report.json"

// App runs the pipeline according to a Config.
type App struct {
	cfg *Config
	log *zap.Logger

	reportMu   sync.RWMutex
	lastReport *trackmap.Report
}

// New returns an app using cfg, which must have been loaded with
// LoadConfig or otherwise filled in.
func New(cfg *Config) (*App, error) {
	if err := cfg.fillDefaults(); err != nil {
		return nil, err
	}
	return &App{
		cfg: cfg,
		log: trackmap.Log.Named("app"),
	}, nil
}

// Config returns the app's configuration.
func (a *App) Config() *Config { return a.cfg }

// Hooks let a caller watch a run, e.g. to draw progress bars.
// All are optional.
type Hooks struct {
	// Called with the number of activities before they are ingested.
	Start    func(activities int)
	OnResult func(trackmap.ActivityResult)
	Filter   func(category string, pass int) trackmap.ProgressFunc
}

// Run opens the export at exportPath and runs the pipeline on it,
// writing intermediate files, maps and the report to the work
// directory.
func (a *App) Run(ctx context.Context, exportPath string, hooks Hooks) (trackmap.Report, error) {
	return a.run(ctx, exportPath, nil, hooks)
}

// Refilter is like Run but loads the ingested points from pointsPath
// (usually a rawpoints.csv from an earlier run) instead of parsing
// tracks. The export is still opened for its activity index.
func (a *App) Refilter(ctx context.Context, exportPath, pointsPath string, hooks Hooks) (trackmap.Report, error) {
	return a.run(ctx, exportPath, trackmap.PointFile(pointsPath), hooks)
}

func (a *App) run(ctx context.Context, exportPath string, points trackmap.PointSource, hooks Hooks) (trackmap.Report, error) {
	policy, err := trackmap.ParseFailurePolicy(a.cfg.FailurePolicy)
	if err != nil {
		return trackmap.Report{}, err
	}

	exp, format, err := trackmap.OpenExport(ctx, exportPath, a.cfg.Format)
	if err != nil {
		return trackmap.Report{}, err
	}
	defer exp.Close()

	var reader trackmap.TrackFileReader = exp
	if !a.cfg.NoCache && points == nil {
		input, err := trackmap.OpenInput(ctx, exportPath)
		if err != nil {
			return trackmap.Report{}, err
		}
		cache, err := trackcache.Open(ctx, a.cfg.CachePath, trackmap.Log.Named("cache"))
		if err != nil {
			// the cache only saves time
			a.log.Warn("track cache unavailable", zap.String("path", a.cfg.CachePath), zap.Error(err))
		} else {
			defer cache.Close()
			reader = cache.Wrap(input.FS, exp)
		}
	}

	outputs := make([]trackmap.Output, 0, len(a.cfg.Outputs))
	for _, name := range a.cfg.Outputs {
		out, _, err := render.NewOutput(name, a.cfg.WorkDir)
		if err != nil {
			return trackmap.Report{}, err
		}
		outputs = append(outputs, out)
	}

	opts := trackmap.RunOptions{
		Ingest: trackmap.IngestOptions{
			Parallelism:       a.cfg.Parallelism,
			PreFilterDistance: *a.cfg.PreFilterMeters,
			ActivityTimeout:   time.Duration(a.cfg.ActivityTimeout),
			Policy:            policy,
			OnResult:          hooks.OnResult,
		},
		Dedupe: trackmap.DedupeOptions{
			Threshold: a.cfg.ThresholdMeters,
			Progress:  hooks.Filter,
		},
		WorkDir: a.cfg.WorkDir,
		Points:  points,
		Outputs: outputs,
		Logger:  trackmap.Log.Named("run"),
	}

	if hooks.Start != nil && points == nil {
		hooks.Start(len(exp.Activities()))
	}

	report, _, err := trackmap.Run(ctx, exp, reader, opts)
	report.Input = exportPath
	report.Format = format.Name

	a.reportMu.Lock()
	a.lastReport = &report
	a.reportMu.Unlock()

	if saveErr := saveReport(filepath.Join(a.cfg.WorkDir, ReportFile), report); saveErr != nil {
		a.log.Error("saving run report", zap.Error(saveErr))
	}

	return report, err
}

// LastReport returns the report of the most recent run, loading it
// from the work directory if this process has not done a run yet.
func (a *App) LastReport() (*trackmap.Report, error) {
	a.reportMu.RLock()
	rep := a.lastReport
	a.reportMu.RUnlock()
	if rep != nil {
		return rep, nil
	}

	data, err := os.ReadFile(filepath.Join(a.cfg.WorkDir, ReportFile))
	if err != nil {
		return nil, err
	}
	rep = new(trackmap.Report)
	if err := json.Unmarshal(data, rep); err != nil {
		return nil, fmt.Errorf("decoding run report: %w", err)
	}
	return rep, nil
}

func saveReport(filename string, report trackmap.Report) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(report, "", "\t")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
