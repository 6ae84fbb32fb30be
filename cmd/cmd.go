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

// Package tmcmd facilitates the command line interface (CLI)
// and implements the main().
package tmcmd

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/timelinize/trackmap/render"
	"github.com/timelinize/trackmap/tmapp"
	"github.com/timelinize/trackmap/trackmap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configFile  string
	format      string
	threshold   float64
	preFilter   float64
	parallelism int
	policy      string
	timeout     time.Duration
	cachePath   string
	noCache     bool
	outputs     string
	workDir     string
	listen      string
	quiet       bool
	noProgress  bool
)

func init() {
	flag.StringVar(&configFile, "config", "", "config file (default "+tmapp.DefaultConfigFilePath()+")")
	flag.StringVar(&format, "format", "", "export format; empty to recognize it (see 'formats')")
	flag.Float64Var(&threshold, "threshold", trackmap.DefaultThresholdMeters, "minimum separation of kept points, in meters")
	flag.Float64Var(&preFilter, "prefilter", tmapp.DefaultPreFilterMeters, "per-activity pre-filter distance in meters; 0 disables")
	flag.IntVar(&parallelism, "parallelism", 0, "number of ingestion workers (default number of CPUs)")
	flag.StringVar(&policy, "policy", "skip", "what to do when a track fails: skip or abort")
	flag.DurationVar(&timeout, "timeout", 0, "give up on a track after this long; 0 for no limit")
	flag.StringVar(&cachePath, "cache", "", "track cache database (default in the user cache directory)")
	flag.BoolVar(&noCache, "no-cache", false, "do not use the track cache")
	flag.StringVar(&outputs, "outputs", render.OutputKML, "comma-separated maps to render: "+strings.Join(render.OutputNames(), ", "))
	flag.StringVar(&workDir, "workdir", tmapp.DefaultWorkDir, "directory for point files, maps and the run report")
	flag.StringVar(&listen, "listen", tmapp.DefaultListen, "address for 'serve' to listen on")
	flag.BoolVar(&quiet, "quiet", false, "only log warnings and errors to the console")
	flag.BoolVar(&noProgress, "no-progress", false, "do not draw progress bars")
}

// Main runs the program.
func Main() {
	flag.Parse()

	if quiet {
		trackmap.SetConsoleLevel(zapcore.WarnLevel)
	}

	subCommand := "help"
	if flag.NArg() > 0 {
		subCommand = flag.Arg(0)
	}
	subCommandFunc, ok := standardCommands[subCommand]
	if !ok {
		trackmap.Log.Fatal("unknown subcommand", zap.String("subcommand", subCommand))
	}
	if err := checkFlagParsing(); err != nil {
		trackmap.Log.Fatal("possible syntax error detected", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tmapp.TrapSignals(cancel)

	if err := subCommandFunc(ctx, flag.Args()[min(1, flag.NArg()):]); err != nil {
		trackmap.Log.Fatal("subcommand failed",
			zap.String("subcommand", subCommand),
			zap.Error(err))
	}
	_ = trackmap.Log.Sync()
}

type subcommand func(ctx context.Context, args []string) error

var standardCommands map[string]subcommand

func init() {
	standardCommands = map[string]subcommand{
		"run":     cmdRun,
		"filter":  cmdFilter,
		"serve":   cmdServe,
		"formats": cmdFormats,
		"help":    cmdHelp,
		"version": cmdVersion,
	}
}

func cmdRun(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: run <export>")
	}
	app, err := newApp()
	if err != nil {
		return err
	}
	report, err := app.Run(ctx, args[0], newProgress(os.Stderr).hooks())
	printSummary(os.Stdout, report, app.Config().WorkDir)
	return err
}

func cmdFilter(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: filter <export> [points.csv]")
	}
	app, err := newApp()
	if err != nil {
		return err
	}
	pointsPath := filepath.Join(app.Config().WorkDir, trackmap.RawPointsFile)
	if len(args) == 2 {
		pointsPath = args[1]
	}
	report, err := app.Refilter(ctx, args[0], pointsPath, newProgress(os.Stderr).hooks())
	printSummary(os.Stdout, report, app.Config().WorkDir)
	return err
}

func cmdServe(ctx context.Context, _ []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	return app.Serve(ctx)
}

func cmdFormats(context.Context, []string) error {
	for _, f := range trackmap.AllFormats() {
		fmt.Printf("%-12s %s\n", f.Name, f.Title)
		if f.Description != "" {
			fmt.Printf("%-12s %s\n", "", f.Description)
		}
	}
	return nil
}

func cmdHelp(context.Context, []string) error {
	out := flag.CommandLine.Output()
	fmt.Fprintln(out, `Usage: trackmap [flags] <command> [args]

Reduces the GPS tracks of an activity export (RunKeeper, Strava or a
folder of GPX, KML, GeoJSON or NMEA files) to a heatmap of places visited.

Commands:
  run <export>                  ingest, filter and render an export
  filter <export> [points.csv]  filter and render previously ingested points
  serve                         serve the work directory and run reports
  formats                       list supported export formats
  version                       print the version
  help                          print this help

Flags:`)
	flag.PrintDefaults()
	return nil
}

func cmdVersion(context.Context, []string) error {
	version := "(devel)"
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		version = info.Main.Version
	}
	fmt.Println("trackmap", version)
	return nil
}

// newApp loads the config file and applies the flags that were set on
// the command line over it.
func newApp() (*tmapp.App, error) {
	cfg, err := tmapp.LoadConfig(configFile)
	if err != nil {
		return nil, err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "format":
			cfg.Format = format
		case "threshold":
			cfg.ThresholdMeters = threshold
		case "prefilter":
			cfg.PreFilterMeters = &preFilter
		case "parallelism":
			cfg.Parallelism = parallelism
		case "policy":
			cfg.FailurePolicy = policy
		case "timeout":
			cfg.ActivityTimeout = tmapp.Duration(timeout)
		case "cache":
			cfg.CachePath = cachePath
		case "no-cache":
			cfg.NoCache = noCache
		case "outputs":
			cfg.Outputs = splitList(outputs)
		case "workdir":
			cfg.WorkDir = workDir
		case "listen":
			cfg.Listen = listen
		}
	})
	return tmapp.New(cfg)
}

func splitList(s string) []string {
	var list []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}

func printSummary(w io.Writer, report trackmap.Report, workDir string) {
	if report.RunID == "" {
		return
	}
	fmt.Fprintf(w, "Activities: %d parsed, %d failed, %d skipped (of %d)\n",
		report.Ingest.Parsed, report.Ingest.Failed, report.Ingest.Skipped, report.Ingest.Activities)
	for _, p := range report.Partitions {
		fmt.Fprintf(w, "%s: pass 1 kept %d/%d, pass 2 kept %d/%d\n",
			p.Category, p.Pass1, p.Input, p.Pass2, p.Pass1)
	}
	fmt.Fprintf(w, "Points: %d raw, %d final\n", report.Ingest.RawPoints, report.FinalPoints)
	for _, name := range report.Outputs {
		fmt.Fprintf(w, "Wrote %s map to %s\n", name, workDir)
	}
	if len(report.Failures) > 0 {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		fmt.Fprintln(w, "Failures:")
		_ = enc.Encode(report.Failures)
	}
}

// progress draws progress bars for a run on a terminal.
type progress struct {
	w        io.Writer
	disabled bool

	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

func newProgress(w io.Writer) *progress {
	return &progress{w: w, disabled: noProgress || quiet}
}

func (p *progress) hooks() tmapp.Hooks {
	if p.disabled {
		return tmapp.Hooks{}
	}
	return tmapp.Hooks{
		Start: func(activities int) {
			p.replace(activities, "ingesting tracks")
		},
		OnResult: func(trackmap.ActivityResult) {
			p.mu.Lock()
			_ = p.bar.Add(1)
			p.mu.Unlock()
		},
		Filter: func(category string, pass int) trackmap.ProgressFunc {
			p.replace(-1, fmt.Sprintf("%s, pass %d", category, pass))
			return func(done, total int) {
				p.mu.Lock()
				defer p.mu.Unlock()
				if p.bar.GetMax() != total {
					p.bar.ChangeMax(total)
				}
				_ = p.bar.Set(done)
			}
		},
	}
}

// replace finishes the current bar, if any, and starts a new one.
func (p *progress) replace(maxVal int, description string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
	}
	p.bar = progressbar.NewOptions(maxVal,
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// checkFlagParsing returns an error if it looks like the program was
// invoked with flags after the subcommand, as in
// `trackmap run export.zip -workdir out`, where they are not parsed;
// it needs to be run as `trackmap -workdir out run export.zip`.
func checkFlagParsing() error {
	for _, arg := range flag.Args()[min(1, flag.NArg()):] {
		if strings.HasPrefix(arg, "-") {
			return fmt.Errorf("flag %s was not parsed; make sure flags go before the subcommand", arg)
		}
	}
	return nil
}
