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

package tmapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/timelinize/trackmap/render"
	"github.com/timelinize/trackmap/trackmap"
	"go.uber.org/zap"
)

// Config describes how runs are done and where the server listens.
// Zero values mean defaults; see fillDefaults.
type Config struct {
	// The listen address of the server.
	Listen string `json:"listen,omitempty"`

	// Minimum separation of kept points within a category, in meters.
	ThresholdMeters float64 `json:"threshold_meters,omitempty"`

	// Distance of the per-activity pre-filter done by the ingestion
	// workers. Nil means the default; 0 disables it.
	PreFilterMeters *float64 `json:"prefilter_meters,omitempty"`

	// Number of ingestion workers; defaults to the number of CPUs.
	Parallelism int `json:"parallelism,omitempty"`

	// "skip" (default) or "abort".
	FailurePolicy string `json:"failure_policy,omitempty"`

	// If > 0, a track that takes longer than this to parse fails.
	ActivityTimeout Duration `json:"activity_timeout,omitempty"`

	// The sqlite database of parsed tracks; defaults to a file in the
	// user's cache directory. NoCache disables the cache.
	CachePath string `json:"cache_path,omitempty"`
	NoCache   bool   `json:"no_cache,omitempty"`

	// Which maps to render; see render.OutputNames.
	Outputs []string `json:"outputs,omitempty"`

	// Where intermediate point files, maps and the run report are
	// written, and what the server serves.
	WorkDir string `json:"work_dir,omitempty"`

	// Name of the export format; empty means recognize it.
	Format string `json:"format,omitempty"`

	log *zap.Logger
}

// Defaults for unset config values.
const (
	DefaultListen          = "127.0.0.1:12003"
	DefaultPreFilterMeters = 20.0
	DefaultWorkDir         = "trackmap-output"
)

// Environment variables that override the config file.
const (
	EnvListen      = "TRACKMAP_LISTEN"
	EnvParallelism = "TRACKMAP_PARALLELISM"
)

// LoadConfig reads the config file at path. If path is empty the
// default config file is used, and it is not an error for it to be
// missing. Environment overrides are applied and defaults filled in.
func LoadConfig(path string) (*Config, error) {
	cfg := new(Config)

	filename := path
	if filename == "" {
		filename = DefaultConfigFilePath()
	}
	data, err := os.ReadFile(filename)
	loaded := err == nil
	switch {
	case errors.Is(err, fs.ErrNotExist) && path == "":
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decoding config file %s: %w", filename, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.fillDefaults(); err != nil {
		return nil, err
	}
	if loaded {
		cfg.log.Info("loaded config file", zap.String("path", filename))
	}
	return cfg, nil
}

func (cfg *Config) applyEnv() error {
	if v := os.Getenv(EnvListen); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv(EnvParallelism); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvParallelism, err)
		}
		cfg.Parallelism = n
	}
	return nil
}

// fillDefaults sets unset values and validates the others.
func (cfg *Config) fillDefaults() error {
	if cfg.log == nil {
		cfg.log = trackmap.Log.Named("config").With(zap.Time("loaded", time.Now()))
	}
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.ThresholdMeters == 0 {
		cfg.ThresholdMeters = trackmap.DefaultThresholdMeters
	}
	if cfg.ThresholdMeters < 0 {
		return fmt.Errorf("threshold must be positive: %v", cfg.ThresholdMeters)
	}
	if cfg.PreFilterMeters == nil {
		d := DefaultPreFilterMeters
		cfg.PreFilterMeters = &d
	}
	if *cfg.PreFilterMeters < 0 {
		return fmt.Errorf("pre-filter distance must not be negative: %v", *cfg.PreFilterMeters)
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = runtime.NumCPU()
	}
	if _, err := trackmap.ParseFailurePolicy(cfg.FailurePolicy); err != nil {
		return err
	}
	if cfg.CachePath == "" {
		cfg.CachePath = filepath.Join(DefaultCacheDir(), "tracks.db")
	}
	if len(cfg.Outputs) == 0 {
		cfg.Outputs = []string{render.OutputKML}
	}
	for _, name := range cfg.Outputs {
		if _, _, err := render.NewOutput(name, ""); err != nil {
			return err
		}
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = DefaultWorkDir
	}
	return nil
}

// Save persists the config to filename, or to the default config file
// if filename is empty.
func (cfg *Config) Save(filename string) error {
	if filename == "" {
		filename = DefaultConfigFilePath()
	}
	err := os.MkdirAll(filepath.Dir(filename), 0755)
	if err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	cfgFile, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer cfgFile.Close()
	enc := json.NewEncoder(cfgFile)
	enc.SetIndent("", "\t")
	if err = enc.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if cfg.log != nil {
		cfg.log.Info("saved config file", zap.String("path", filename))
	}
	return nil
}

// DefaultConfigFilePath returns the file path where
// configuration is persisted.
func DefaultConfigFilePath() string {
	cfgDir, err := os.UserConfigDir()
	if err == nil {
		return filepath.Join(cfgDir, "trackmap", "config.json")
	}
	cfgDir, err = os.UserHomeDir()
	if err == nil {
		return filepath.Join(cfgDir, ".trackmap", "config.json")
	}
	return filepath.Join(".trackmap", "config.json")
}

// DefaultCacheDir returns the file path where
// the track cache is persisted.
func DefaultCacheDir() string {
	cacheDir, err := os.UserCacheDir()
	if err == nil {
		return filepath.Join(cacheDir, "trackmap")
	}
	homeDir, err := os.UserHomeDir()
	if err == nil {
		return filepath.Join(homeDir, ".trackmap", "cache")
	}
	return filepath.Join(".trackmap", "cache")
}

// Duration is a time.Duration that is written to JSON as a string
// like "30s". Numbers are read as nanoseconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		*d = Duration(val)
	case string:
		dur, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		*d = Duration(dur)
	default:
		return fmt.Errorf("invalid duration: %s", b)
	}
	return nil
}
