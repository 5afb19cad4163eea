// Package version exposes the conductor release version.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var raw string

// Get returns the embedded release version without surrounding whitespace.
func Get() string {
	return strings.TrimSpace(raw)
}
