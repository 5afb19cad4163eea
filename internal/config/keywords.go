// Package config provides keyword table loading for capability inference.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/nexuslabs/conductor/pkg/models"
)

// KeywordTable maps capability tags to the keywords that imply them, as
// loaded from a YAML override file. The tag set is closed: entries with an
// unknown tag are rejected at load time.
type KeywordTable map[models.CapabilityTag][]string

// LoadKeywordTable reads a YAML keyword table from the given path. The file
// format is a flat mapping of tag name to keyword list:
//
//	DEBUGGING: [debug, crash, stacktrace]
//	TESTING: [test, coverage]
func LoadKeywordTable(path string) (KeywordTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyword table: %w", err)
	}

	raw := map[string][]string{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse keyword table %s: %w", path, err)
	}

	table := make(KeywordTable, len(raw))
	for name, keywords := range raw {
		// Tag constants are lowercase; the file format spells them uppercase.
		tag := models.CapabilityTag(strings.ToLower(name))
		if !tag.Valid() {
			return nil, fmt.Errorf("keyword table %s: unknown capability tag %q", path, name)
		}
		if len(keywords) == 0 {
			return nil, fmt.Errorf("keyword table %s: tag %q has no keywords", path, name)
		}
		sort.Strings(keywords)
		table[tag] = keywords
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("keyword table %s: no entries", path)
	}
	return table, nil
}

// WatchKeywordTable watches the keyword table file and invokes onChange with
// the freshly loaded table whenever it is rewritten. Parse failures are
// reported through onError and leave the previous table in effect. The watch
// stops when the context is cancelled.
func WatchKeywordTable(ctx context.Context, path string, onChange func(KeywordTable), onError func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory, not the file: editors replace files on save and
	// the inode-level watch would be lost.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(path)

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				table, err := LoadKeywordTable(path)
				if err != nil {
					if onError != nil {
						onError(err)
					}
					continue
				}
				onChange(table)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(err)
				}
			}
		}
	}()

	return nil
}
