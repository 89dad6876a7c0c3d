// Package semver parses package references and compares package versions.
package semver

import (
	"fmt"
	"regexp"
	"strings"
)

const logPrefix = "semver:parser"

// PackageRef is a parsed "id[@range]" package reference.
type PackageRef struct {
	ID string
	// Range is a version, major-only specifier or constraint; empty means any.
	Range string
	Raw   string
}

var (
	packageIDRegex    = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._+-]*$`)
	majorOnlyRegex    = regexp.MustCompile(`^\d+$`)
	exactVersionRegex = regexp.MustCompile(`^\d+\.\d+\.\d+(-[\w.]+)?(\+[\w.]+)?$`)
)

// ParsePackageRef parses a package reference.
//
// Supported formats:
//   - org.example.editor           (any version)
//   - org.example.editor@2         (major only)
//   - org.example.editor@2.1.0     (exact version)
//   - org.example.editor@^2.1.0    (constraint)
func ParsePackageRef(input string) (*PackageRef, error) {
	raw := strings.TrimSpace(input)

	id, rangeStr, found := strings.Cut(raw, "@")
	if !ValidatePackageID(id) {
		return nil, fmt.Errorf("%s - invalid package id: %q", logPrefix, raw)
	}
	if found && rangeStr == "" {
		return nil, fmt.Errorf("%s - empty version after @: %q", logPrefix, raw)
	}

	return &PackageRef{ID: id, Range: rangeStr, Raw: raw}, nil
}

// String renders the reference back to "id[@range]".
func (r PackageRef) String() string {
	if r.Range == "" {
		return r.ID
	}
	return r.ID + "@" + r.Range
}

// IsMajorOnly checks if a range is a major-only specifier (e.g., "3").
func IsMajorOnly(rangeStr string) bool {
	return majorOnlyRegex.MatchString(rangeStr)
}

// IsExactVersion checks if a range is an exact version (e.g., "3.2.1").
func IsExactVersion(rangeStr string) bool {
	return exactVersionRegex.MatchString(rangeStr)
}

// ExtractMajorFromRange extracts the major version if the range is major-only.
// Returns -1 if not a major-only range.
func ExtractMajorFromRange(rangeStr string) int {
	if !IsMajorOnly(rangeStr) {
		return -1
	}
	var major int
	fmt.Sscanf(rangeStr, "%d", &major)
	return major
}

// ValidatePackageID validates a package id (letters, digits, dots, hyphens, underscores, plus).
func ValidatePackageID(id string) bool {
	return packageIDRegex.MatchString(id)
}
