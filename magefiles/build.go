//go:build mage

// Package main provides build targets for the shelf project using Mage.
//
// Usage:
//
//	mage build        Compile the shelf binary to bin/
//	mage buildCGO     Compile shelf against the cgo SQLite driver
//	mage test:all     Run all tests
//	mage test:unit    Run tests in short mode
//	mage test:race    Run all tests with the race detector
//	mage test:cgo     Run the storage tests against the cgo SQLite driver
//	mage test:golden  Regenerate the DDL golden files
//	mage lint         Run golangci-lint
//	mage clean        Remove build artifacts
//	mage install      Install shelf to GOPATH/bin
//	mage stats        Print Go LOC and documentation word counts
package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binaryName = "shelf"
	binaryDir  = "bin"
	cmdDir     = "./cmd/shelf"

	// cgoTag selects the mattn/go-sqlite3 driver instead of modernc.
	cgoTag = "cgo_sqlite"
)

// Build compiles the shelf binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-v", "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// BuildCGO compiles shelf with the cgo SQLite driver.
func BuildCGO() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	env := map[string]string{"CGO_ENABLED": "1"}
	return sh.RunWithV(env, binGo, "build", "-v", "-tags", cgoTag,
		"-o", filepath.Join(binaryDir, binaryName+"-cgo"), cmdDir)
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	src := filepath.Join(binaryDir, binaryName)
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, src)
}
