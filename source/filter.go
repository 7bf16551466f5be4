package source

import (
	"fmt"

	"github.com/gobwas/glob"
)

// PropertyFilter removes columns matching glob patterns from rows
type PropertyFilter struct {
	globs []glob.Glob
	keep  string
}

// NewPropertyFilter compiles patterns. The keep column is never removed.
// Empty patterns remove nothing.
func NewPropertyFilter(patterns []string, keep string) (*PropertyFilter, error) {
	f := &PropertyFilter{
		globs: make([]glob.Glob, 0, len(patterns)),
		keep:  keep,
	}

	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid property pattern %q: %w", pattern, err)
		}
		f.globs = append(f.globs, g)
	}

	return f, nil
}

// Excluded returns true if column should be dropped
func (f *PropertyFilter) Excluded(column string) bool {
	if column == f.keep {
		return false
	}
	for _, g := range f.globs {
		if g.Match(column) {
			return true
		}
	}
	return false
}

// Apply deletes excluded columns from row in place
func (f *PropertyFilter) Apply(row Row) Row {
	if len(f.globs) == 0 {
		return row
	}
	for column := range row {
		if f.Excluded(column) {
			delete(row, column)
		}
	}
	return row
}
