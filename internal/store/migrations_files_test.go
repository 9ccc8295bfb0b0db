package store

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

func checkUpDownPairs(t *testing.T, fsys fs.FS) {
	t.Helper()
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
	byVersion := map[string]map[string]bool{}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		version := match[1]
		direction := match[2]
		if byVersion[version] == nil {
			byVersion[version] = map[string]bool{}
		}
		if byVersion[version][direction] {
			t.Fatalf("duplicate %s migration file for version %s", direction, version)
		}
		byVersion[version][direction] = true
	}

	if len(byVersion) == 0 {
		t.Fatal("no migrations discovered")
	}

	for version, dirs := range byVersion {
		if !dirs["up"] || !dirs["down"] {
			t.Fatalf("version %s must include both up and down files", version)
		}
	}
}

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	checkUpDownPairs(t, os.DirFS(filepath.Join("..", "..", "db", "migrations")))
}

func TestSQLiteSchemaHasMatchingUpAndDownFiles(t *testing.T) {
	sub, err := fs.Sub(sqliteSchema, "schema/sqlite")
	if err != nil {
		t.Fatalf("sub fs: %v", err)
	}
	checkUpDownPairs(t, sub)
}
