package models

import "sort"

// CapabilityTag identifies a class of work a worker can perform. The tag set
// is closed: matching code switches over these values exhaustively rather
// than comparing open strings.
type CapabilityTag string

const (
	// CapabilityGeneral is the fallback tag when no keyword matches. Every
	// worker is assumed to handle general work at baseline suitability.
	CapabilityGeneral CapabilityTag = "general"
	// CapabilityCodeAnalysis covers reading and understanding code.
	CapabilityCodeAnalysis CapabilityTag = "code_analysis"
	// CapabilityDebugging covers fault diagnosis and fixing.
	CapabilityDebugging CapabilityTag = "debugging"
	// CapabilityOptimization covers performance work.
	CapabilityOptimization CapabilityTag = "optimization"
	// CapabilityTesting covers writing and running tests.
	CapabilityTesting CapabilityTag = "testing"
	// CapabilityDocumentation covers docs and comments.
	CapabilityDocumentation CapabilityTag = "documentation"
	// CapabilityFileOperations covers file and directory manipulation.
	CapabilityFileOperations CapabilityTag = "file_operations"
	// CapabilityResearch covers exploration and information gathering.
	CapabilityResearch CapabilityTag = "research"
)

// AllCapabilities lists every known tag, sorted.
var AllCapabilities = []CapabilityTag{
	CapabilityCodeAnalysis,
	CapabilityDebugging,
	CapabilityDocumentation,
	CapabilityFileOperations,
	CapabilityGeneral,
	CapabilityOptimization,
	CapabilityResearch,
	CapabilityTesting,
}

// Valid returns true if the tag is a known value.
func (c CapabilityTag) Valid() bool {
	switch c {
	case CapabilityGeneral, CapabilityCodeAnalysis, CapabilityDebugging,
		CapabilityOptimization, CapabilityTesting, CapabilityDocumentation,
		CapabilityFileOperations, CapabilityResearch:
		return true
	default:
		return false
	}
}

// CapabilityOverlap returns how many tags in required are present in have.
func CapabilityOverlap(required, have []CapabilityTag) int {
	set := make(map[CapabilityTag]bool, len(have))
	for _, c := range have {
		set[c] = true
	}
	overlap := 0
	for _, c := range required {
		if set[c] {
			overlap++
		}
	}
	return overlap
}

// SortCapabilities sorts a tag slice in place and returns it. Used to keep
// inferred requirement sets deterministic.
func SortCapabilities(tags []CapabilityTag) []CapabilityTag {
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}
