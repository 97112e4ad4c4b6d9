//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Test groups test targets.
type Test mg.Namespace

// All runs every test.
func (Test) All() error {
	return sh.RunV(binGo, "test", "./...")
}

// Unit runs tests in short mode.
func (Test) Unit() error {
	return sh.RunV(binGo, "test", "-short", "./...")
}

// Race runs every test with the race detector.
func (Test) Race() error {
	env := map[string]string{"CGO_ENABLED": "1"}
	return sh.RunWithV(env, binGo, "test", "-race", "./...")
}

// CGO runs the storage and engine tests against the cgo SQLite driver.
func (Test) CGO() error {
	env := map[string]string{"CGO_ENABLED": "1"}
	return sh.RunWithV(env, binGo, "test", "-tags", cgoTag,
		"./internal/sqlite/...", "./internal/engine/...", "./pkg/...")
}

// Golden rewrites the DDL golden files from the current builder output.
func (Test) Golden() error {
	return sh.RunV(binGo, "test", "./internal/sqlbuild/...", "-run", "Golden", "-update")
}
