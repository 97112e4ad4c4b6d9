//go:build mage

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// sourceRoots are the directories holding shelf's Go packages.
var sourceRoots = []string{"cmd", "internal", "pkg"}

type pkgStats struct {
	Prod int `json:"prod"`
	Test int `json:"test"`
}

// Stats prints Go lines of code per package, production and test, as one
// JSON record.
func Stats() error {
	perPkg := map[string]*pkgStats{}
	var total pkgStats
	for _, root := range sourceRoots {
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			lines := bytes.Count(data, []byte("\n"))
			dir := filepath.ToSlash(filepath.Dir(path))
			s := perPkg[dir]
			if s == nil {
				s = &pkgStats{}
				perPkg[dir] = s
			}
			if strings.HasSuffix(path, "_test.go") {
				s.Test += lines
				total.Test += lines
			} else {
				s.Prod += lines
				total.Prod += lines
			}
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	line, err := json.Marshal(map[string]any{"packages": perPkg, "total": total})
	if err != nil {
		return err
	}
	fmt.Println(string(line))
	return nil
}
