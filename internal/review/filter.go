package review

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter decides which change records are eligible for analysis.
type Filter struct {
	// IncludedExtensions lists accepted suffixes such as ".go". Empty means
	// no file is eligible.
	IncludedExtensions []string
	// ExcludedDirs rejects any path containing one of these names as a
	// substring.
	ExcludedDirs []string
	// ExcludedPatterns are doublestar globs matched against the full path
	// and against the base name.
	ExcludedPatterns []string
}

// Apply returns the eligible records in their original order. Deleted files
// are always dropped.
func (f Filter) Apply(records []ChangeRecord) []ChangeRecord {
	var out []ChangeRecord
	for _, rec := range records {
		if f.Eligible(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Eligible reports whether a single record passes the filter.
func (f Filter) Eligible(rec ChangeRecord) bool {
	if rec.Status == StatusDeleted {
		return false
	}
	if !f.hasIncludedExtension(rec.Path) {
		return false
	}
	for _, dir := range f.ExcludedDirs {
		if dir != "" && strings.Contains(rec.Path, dir) {
			return false
		}
	}
	return !f.matchesExcludedPattern(rec.Path)
}

func (f Filter) hasIncludedExtension(p string) bool {
	for _, ext := range f.IncludedExtensions {
		if ext != "" && strings.HasSuffix(p, ext) {
			return true
		}
	}
	return false
}

func (f Filter) matchesExcludedPattern(p string) bool {
	base := path.Base(p)
	for _, pattern := range f.ExcludedPatterns {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, base); ok {
			return true
		}
	}
	return false
}
