package semver

import (
	"sort"

	masterminds "github.com/Masterminds/semver/v3"
)

// ResolveVersion returns the highest version satisfying rangeStr, or "" when
// none does. An empty range selects the latest stable version, falling back
// to the latest prerelease. Unparseable versions are ignored.
func ResolveVersion(versions []string, rangeStr string) string {
	parsed := parseAll(versions)
	if len(parsed) == 0 {
		return ""
	}
	sortDesc(parsed)

	switch {
	case rangeStr == "":
		for _, v := range parsed {
			if v.Prerelease() == "" {
				return v.Original()
			}
		}
		return parsed[0].Original()

	case IsMajorOnly(rangeStr):
		major := uint64(ExtractMajorFromRange(rangeStr))
		for _, v := range parsed {
			if v.Major() == major && v.Prerelease() == "" {
				return v.Original()
			}
		}
		return ""
	}

	constraint, err := masterminds.NewConstraint(rangeStr)
	if err != nil {
		for _, v := range parsed {
			if v.Original() == rangeStr {
				return v.Original()
			}
		}
		return ""
	}
	for _, v := range parsed {
		if constraint.Check(v) {
			return v.Original()
		}
	}
	return ""
}

// Latest returns the latest stable version, or the latest prerelease when
// there is no stable one.
func Latest(versions []string) string {
	return ResolveVersion(versions, "")
}

// IsNewer reports whether candidate is a strictly higher version than
// installed. Unparseable input is never newer.
func IsNewer(candidate, installed string) bool {
	c, err := masterminds.NewVersion(candidate)
	if err != nil {
		return false
	}
	i, err := masterminds.NewVersion(installed)
	if err != nil {
		return false
	}
	return c.GreaterThan(i)
}

// SatisfiesRange checks if a version string satisfies a range.
func SatisfiesRange(version, rangeStr string) bool {
	sv, err := masterminds.NewVersion(version)
	if err != nil {
		return false
	}
	if IsMajorOnly(rangeStr) {
		return int(sv.Major()) == ExtractMajorFromRange(rangeStr)
	}

	constraint, err := masterminds.NewConstraint(rangeStr)
	if err != nil {
		return false
	}
	return constraint.Check(sv)
}

// Valid reports whether version parses as a semantic version.
func Valid(version string) bool {
	_, err := masterminds.NewVersion(version)
	return err == nil
}

// SortDesc returns the parseable versions ordered highest first.
func SortDesc(versions []string) []string {
	parsed := parseAll(versions)
	sortDesc(parsed)
	out := make([]string, len(parsed))
	for i, v := range parsed {
		out[i] = v.Original()
	}
	return out
}

// --- internal helpers ---

func parseAll(versions []string) []*masterminds.Version {
	parsed := make([]*masterminds.Version, 0, len(versions))
	for _, s := range versions {
		v, err := masterminds.NewVersion(s)
		if err != nil {
			continue
		}
		parsed = append(parsed, v)
	}
	return parsed
}

func sortDesc(versions []*masterminds.Version) {
	sort.SliceStable(versions, func(i, j int) bool {
		return versions[i].GreaterThan(versions[j])
	})
}
