//go:generate go run -tags generator generator.go

package main

import (
	_ "github.com/timelinize/trackmap/datasources/runkeeper"
	_ "github.com/timelinize/trackmap/datasources/strava"
	_ "github.com/timelinize/trackmap/datasources/trackdir"
)
