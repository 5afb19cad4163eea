// Package orchestrator implements the capability-based task orchestration
// core: worker registry, capability matcher, priority scheduler, health
// monitor, and result aggregator.
package orchestrator

import (
	"strings"
	"sync"

	"github.com/nexuslabs/conductor/pkg/models"
)

// KeywordTable maps capability tags to the keywords that imply them. It is
// the single source of truth for capability inference.
type KeywordTable map[models.CapabilityTag][]string

// DefaultKeywordTable returns the built-in keyword mappings. Callers may
// override individual entries via configuration; the tag set itself is
// closed.
func DefaultKeywordTable() KeywordTable {
	return KeywordTable{
		models.CapabilityCodeAnalysis: {
			"analyze", "analysis", "review", "inspect", "understand", "audit",
		},
		models.CapabilityDebugging: {
			"debug", "error", "fix", "bug", "crash", "broken", "diagnose", "reproduce",
		},
		models.CapabilityOptimization: {
			"optimize", "optimise", "performance", "slow", "speed", "memory", "latency",
		},
		models.CapabilityTesting: {
			"test", "coverage", "verify", "validate", "regression",
		},
		models.CapabilityDocumentation: {
			"document", "docs", "readme", "comment", "changelog",
		},
		models.CapabilityFileOperations: {
			"file", "directory", "move", "copy", "rename", "organize",
		},
		models.CapabilityResearch: {
			"research", "investigate", "explore", "search", "gather",
		},
	}
}

// Match records which keyword implied which tag during inference.
type Match struct {
	// Tag is the inferred capability.
	Tag models.CapabilityTag
	// Keyword is the substring that triggered the match.
	Keyword string
}

// Matcher infers required capability tags from free-text descriptions by
// substring keyword lookup. The table can be swapped at runtime (config hot
// reload); reads and writes are synchronized.
type Matcher struct {
	mu    sync.RWMutex
	table KeywordTable
}

// NewMatcher creates a Matcher with the given table, or the default table
// when nil.
func NewMatcher(table KeywordTable) *Matcher {
	if table == nil {
		table = DefaultKeywordTable()
	}
	return &Matcher{table: table}
}

// Reload replaces the keyword table. A nil table restores the default.
func (m *Matcher) Reload(table KeywordTable) {
	if table == nil {
		table = DefaultKeywordTable()
	}
	m.mu.Lock()
	m.table = table
	m.mu.Unlock()
}

// Matches returns every keyword hit for the description. Multiple tags may
// match; the result is sorted by tag then keyword for determinism.
func (m *Matcher) Matches(description string) []Match {
	lower := strings.ToLower(description)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []Match
	for _, tag := range models.AllCapabilities {
		for _, kw := range m.table[tag] {
			if strings.Contains(lower, kw) {
				matches = append(matches, Match{Tag: tag, Keyword: kw})
				break
			}
		}
	}
	return matches
}

// Infer returns the capability tags required by the description. The result
// is never empty: when no keyword matches, the configured default tag is
// returned so every worker scores against a concrete requirement set.
func (m *Matcher) Infer(description string) []models.CapabilityTag {
	matches := m.Matches(description)
	if len(matches) == 0 {
		return []models.CapabilityTag{models.CapabilityGeneral}
	}

	tags := make([]models.CapabilityTag, 0, len(matches))
	for _, match := range matches {
		tags = append(tags, match.Tag)
	}
	return models.SortCapabilities(tags)
}
