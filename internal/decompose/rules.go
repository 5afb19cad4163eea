package decompose

import (
	"strings"

	"github.com/nexuslabs/conductor/pkg/models"
)

// step is one subtask template inside a rule. DependsOn holds indexes into
// the rule's step list; an empty list on any step other than the first opts
// the whole rule out of the default linear chain.
type step struct {
	title        string
	description  string
	dependsOn    []int
	priorityBump int
}

// rule maps a description pattern to a canonical subtask sequence.
type rule struct {
	name string
	// match reports whether the rule applies to the lower-cased description.
	match func(desc string) bool
	// linear chains step[i] onto step[i-1] when true; otherwise each step's
	// dependsOn indexes are used as-is.
	linear bool
	steps  []step
}

func containsAll(desc string, words ...string) bool {
	for _, w := range words {
		if !strings.Contains(desc, w) {
			return false
		}
	}
	return true
}

func containsAny(desc string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(desc, w) {
			return true
		}
	}
	return false
}

// defaultRules is the ordered rule table, most specific first. The last
// entry matches everything and yields the generic 4-step sequence.
var defaultRules = []rule{
	{
		name:   "analyze-optimize",
		match:  func(d string) bool { return containsAll(d, "analyze") && containsAny(d, "optimize", "optimise") },
		linear: true,
		steps: []step{
			{title: "Initial Analysis", description: "Analyze the current state of the target"},
			{title: "Identify Issues", description: "Identify problems and optimization opportunities"},
			{title: "Generate Solutions", description: "Generate candidate optimization solutions"},
			{title: "Implement Changes", description: "Implement the selected optimization changes"},
			{title: "Verify Results", description: "Verify the optimization results against the baseline"},
		},
	},
	{
		name:   "refactor",
		match:  func(d string) bool { return containsAny(d, "refactor", "restructure", "reorganize") },
		linear: false,
		steps: []step{
			{title: "Analyze Structure", description: "Analyze the existing structure of the target"},
			{title: "Map Dependencies", description: "Map internal and external dependencies of the target"},
			{title: "Plan Refactor", description: "Plan the refactoring based on structure and dependency analysis", dependsOn: []int{0, 1}},
			{title: "Apply Refactor", description: "Apply the planned refactoring changes", dependsOn: []int{2}},
			{title: "Verify Behavior", description: "Verify behavior is unchanged after refactoring", dependsOn: []int{3}},
		},
	},
	{
		name:   "debug",
		match:  func(d string) bool { return containsAny(d, "debug", "fix", "error", "bug", "crash") },
		linear: true,
		steps: []step{
			{title: "Reproduce Issue", description: "Reproduce the reported issue reliably", priorityBump: 1},
			{title: "Diagnose Root Cause", description: "Diagnose the root cause of the issue", priorityBump: 1},
			{title: "Apply Fix", description: "Apply a fix for the diagnosed root cause", priorityBump: 1},
			{title: "Verify Fix", description: "Verify the fix resolves the issue without regressions", priorityBump: 1},
		},
	},
	{
		name:   "testing",
		match:  func(d string) bool { return containsAny(d, "test", "coverage") },
		linear: true,
		steps: []step{
			{title: "Identify Coverage Gaps", description: "Identify untested paths in the target"},
			{title: "Write Tests", description: "Write tests covering the identified gaps"},
			{title: "Run And Stabilize", description: "Run the new tests and stabilize any flakes"},
		},
	},
	{
		name:   "generic",
		match:  func(d string) bool { return true },
		linear: true,
		steps: []step{
			{title: "Understand Requirements", description: "Understand the requirements of the request"},
			{title: "Plan Approach", description: "Plan the approach to satisfy the requirements"},
			{title: "Execute Plan", description: "Execute the planned approach"},
			{title: "Verify Outcome", description: "Verify the outcome matches the requirements"},
		},
	},
}

// matchRule returns the first rule whose pattern matches the description.
func matchRule(description string) rule {
	lower := strings.ToLower(description)
	for _, r := range defaultRules {
		if r.match(lower) {
			return r
		}
	}
	return defaultRules[len(defaultRules)-1]
}

// bumpPriority raises a priority by bump levels, clamped to the valid range.
func bumpPriority(p models.Priority, bump int) models.Priority {
	return (p + models.Priority(bump)).Clamp()
}
