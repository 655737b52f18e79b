package test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mickamy/spxplain/internal/model"
	"github.com/mickamy/spxplain/internal/parser"
)

var (
	rootPath string
	once     sync.Once
)

// RootPath resolves the repository root (where go.mod resides).
func RootPath(t *testing.T) string {
	t.Helper()
	once.Do(func() {
		wd, err := os.Getwd()
		if err != nil {
			t.Fatalf("getwd: %v", err)
		}
		for {
			if _, err := os.Stat(filepath.Join(wd, "go.mod")); err == nil {
				rootPath = wd
				break
			}
			next := filepath.Dir(wd)
			if next == wd {
				t.Fatalf("go.mod not found from %s", wd)
			}
			wd = next
		}
	})
	return rootPath
}

// SamplePath returns the path of a file under samples/.
func SamplePath(t *testing.T, rel string) string {
	t.Helper()
	return filepath.Join(RootPath(t), "samples", rel)
}

// LoadSampleResponse parses a saved query response under samples/.
func LoadSampleResponse(t *testing.T, rel string) *model.ResultSet {
	t.Helper()
	f, err := os.Open(SamplePath(t, rel))
	if err != nil {
		t.Fatalf("open sample: %v", err)
	}
	defer func() { _ = f.Close() }()

	rs, err := parser.ParseResponse(f)
	if err != nil {
		t.Fatalf("parse sample: %v", err)
	}
	return rs
}

// LoadSampleExplain parses a PostgreSQL EXPLAIN document under samples/.
func LoadSampleExplain(t *testing.T, rel string) *model.ResultSet {
	t.Helper()
	f, err := os.Open(SamplePath(t, rel))
	if err != nil {
		t.Fatalf("open sample: %v", err)
	}
	defer func() { _ = f.Close() }()

	rs, err := parser.ParsePostgres(f)
	if err != nil {
		t.Fatalf("parse explain: %v", err)
	}
	return rs
}
