package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/nexuslabs/conductor/pkg/models"
)

func TestLoadKeywordTable(t *testing.T) {
	path := writeFile(t, t.TempDir(), "keywords.yaml", `
DEBUGGING: [crash, stacktrace, panic]
TESTING: [test, coverage]
`)

	table, err := LoadKeywordTable(path)
	if err != nil {
		t.Fatalf("LoadKeywordTable: %v", err)
	}
	if len(table) != 2 {
		t.Fatalf("entries = %d, want 2", len(table))
	}
	want := []string{"crash", "panic", "stacktrace"}
	if !reflect.DeepEqual(table[models.CapabilityDebugging], want) {
		t.Errorf("DEBUGGING keywords = %v, want %v", table[models.CapabilityDebugging], want)
	}
}

func TestLoadKeywordTableNormalizesTagCase(t *testing.T) {
	path := writeFile(t, t.TempDir(), "keywords.yaml", `
DEBUGGING: [crash]
research: [spelunk]
Testing: [coverage]
`)

	table, err := LoadKeywordTable(path)
	if err != nil {
		t.Fatalf("LoadKeywordTable: %v", err)
	}
	for _, tag := range []models.CapabilityTag{
		models.CapabilityDebugging, models.CapabilityResearch, models.CapabilityTesting,
	} {
		if _, ok := table[tag]; !ok {
			t.Errorf("table missing %s: %v", tag, table)
		}
	}
}

func TestLoadKeywordTableRejectsUnknownTag(t *testing.T) {
	path := writeFile(t, t.TempDir(), "keywords.yaml", `
TELEPATHY: [mindread]
`)

	_, err := LoadKeywordTable(path)
	if err == nil {
		t.Fatal("unknown tag accepted")
	}
	if !strings.Contains(err.Error(), "TELEPATHY") {
		t.Errorf("error does not name the bad tag: %v", err)
	}
}

func TestLoadKeywordTableRejectsEmpty(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty file", ""},
		{"tag without keywords", "DEBUGGING: []\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "keywords.yaml", tt.content)
			if _, err := LoadKeywordTable(path); err == nil {
				t.Error("invalid table accepted")
			}
		})
	}
}

func TestLoadKeywordTableMissingFile(t *testing.T) {
	if _, err := LoadKeywordTable(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestWatchKeywordTableReload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "keywords.yaml", "TESTING: [test]\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan KeywordTable, 4)
	err := WatchKeywordTable(ctx, path, func(table KeywordTable) {
		changed <- table
	}, nil)
	if err != nil {
		t.Fatalf("WatchKeywordTable: %v", err)
	}

	// Give the watcher a moment to register before rewriting.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("RESEARCH: [spelunk]\n"), 0644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	select {
	case table := <-changed:
		if _, ok := table[models.CapabilityResearch]; !ok {
			t.Errorf("reloaded table missing RESEARCH: %v", table)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher never fired")
	}
}

func TestWatchKeywordTableParseFailureKeepsOld(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "keywords.yaml", "TESTING: [test]\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan KeywordTable, 4)
	failed := make(chan error, 4)
	err := WatchKeywordTable(ctx, path, func(table KeywordTable) {
		changed <- table
	}, func(err error) {
		failed <- err
	})
	if err != nil {
		t.Fatalf("WatchKeywordTable: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("BOGUS_TAG: [x]\n"), 0644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	select {
	case <-failed:
	case table := <-changed:
		t.Fatalf("invalid table delivered: %v", table)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher never reported the parse failure")
	}
}
