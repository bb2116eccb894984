package gem

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Version is a RubyGems-style version: dot-separated segments where each
// segment is either numeric or alphabetic. Alphabetic segments mark
// prereleases and sort before any numeric segment, so "1.0.0.pre" < "1.0.0".
type Version struct {
	raw      string
	segments []segment
}

// segment is one parsed version piece: either a number or a letter run.
type segment struct {
	num   int
	alpha string // non-empty means an alphabetic (prerelease) segment
}

var versionPattern = regexp.MustCompile(`\A\s*[0-9]+(\.[0-9a-zA-Z]+)*\s*\z`)

// ParseVersion parses a version string like "1.2.0" or "3.0.0.beta1".
// An empty string is treated as "0", matching RubyGems behavior.
func ParseVersion(s string) (Version, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		trimmed = "0"
	}
	if !versionPattern.MatchString(trimmed) {
		return Version{}, fmt.Errorf("%w: invalid version %q", ErrMalformed, s)
	}

	var segs []segment
	for _, part := range strings.Split(trimmed, ".") {
		for _, run := range splitRuns(part) {
			if n, err := strconv.Atoi(run); err == nil {
				segs = append(segs, segment{num: n})
			} else {
				segs = append(segs, segment{alpha: run})
			}
		}
	}
	return Version{raw: trimmed, segments: segs}, nil
}

// MustVersion parses s and panics on error. For tests and literals.
func MustVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// splitRuns splits a dot-free version part into digit and letter runs,
// so "beta1" becomes ["beta", "1"].
func splitRuns(part string) []string {
	var runs []string
	start := 0
	for i := 1; i <= len(part); i++ {
		if i == len(part) || isDigit(part[i]) != isDigit(part[i-1]) {
			runs = append(runs, part[start:i])
			start = i
		}
	}
	return runs
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// String returns the original (trimmed) version string.
func (v Version) String() string { return v.raw }

// Prerelease reports whether the version contains an alphabetic segment.
func (v Version) Prerelease() bool {
	for _, s := range v.segments {
		if s.alpha != "" {
			return true
		}
	}
	return false
}

// Compare returns -1, 0, or 1 ordering v against o.
// Trailing zero segments are insignificant: "1.0" == "1.0.0".
// An alphabetic segment sorts before any numeric segment.
func (v Version) Compare(o Version) int {
	a, b := v.segments, o.segments
	for i := 0; i < len(a) || i < len(b); i++ {
		sa, sb := segmentAt(a, i), segmentAt(b, i)
		if c := compareSegments(sa, sb); c != 0 {
			return c
		}
	}
	return 0
}

// segmentAt pads missing segments with zero, so shorter versions compare
// equal to their zero-extended form.
func segmentAt(segs []segment, i int) segment {
	if i < len(segs) {
		return segs[i]
	}
	return segment{num: 0}
}

func compareSegments(a, b segment) int {
	switch {
	case a.alpha == "" && b.alpha == "":
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		}
		return 0
	case a.alpha != "" && b.alpha != "":
		return strings.Compare(a.alpha, b.alpha)
	case a.alpha != "":
		return -1 // prerelease sorts first
	default:
		return 1
	}
}

// bump returns the version used as the exclusive upper bound of a
// pessimistic ("~>") constraint: drop the last segment and increment the
// new last one, so bump("1.2.3") == "1.3" and bump("1.2") == "2".
func (v Version) bump() Version {
	segs := make([]segment, len(v.segments))
	copy(segs, v.segments)

	// Truncate at the first alphabetic segment; "~> 1.0.a" bumps like "~> 1.0".
	for i, s := range segs {
		if s.alpha != "" {
			segs = segs[:i]
			break
		}
	}
	if len(segs) > 1 {
		segs = segs[:len(segs)-1]
	}
	segs[len(segs)-1].num++

	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = strconv.Itoa(s.num)
	}
	return Version{raw: strings.Join(parts, "."), segments: segs}
}
