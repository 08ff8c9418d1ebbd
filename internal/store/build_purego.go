//go:build !cgo_sqlite
// +build !cgo_sqlite

package store

// Default build: pure Go SQLite via modernc.org/sqlite. No C compiler
// required, cross-compiles cleanly.
//
//   CGO_ENABLED=0 go build ./...

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
