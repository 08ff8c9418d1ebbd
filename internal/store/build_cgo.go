//go:build cgo_sqlite
// +build cgo_sqlite

package store

// cgo build: github.com/mattn/go-sqlite3. Faster on large indexes,
// requires a C compiler.
//
//   CGO_ENABLED=1 go build -tags cgo_sqlite ./...

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)
