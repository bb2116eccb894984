package gem

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is returned when a version or requirement string cannot be
// parsed. Failures wrap this sentinel, so use errors.Is to check.
var ErrMalformed = errors.New("malformed")

// Requirement is a single version constraint: an operator applied to a
// reference version, e.g. ">= 1.0" or "~> 2.3.1".
type Requirement struct {
	Op      string
	Version Version
}

// validOps lists the operators RubyGems requirements support.
var validOps = map[string]bool{
	"=": true, "!=": true, ">": true, "<": true, ">=": true, "<=": true, "~>": true,
}

// ParseRequirement parses a constraint like ">= 1.0". A bare version string
// means exact equality ("1.0" is "= 1.0").
func ParseRequirement(s string) (Requirement, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Requirement{}, fmt.Errorf("%w: empty requirement", ErrMalformed)
	}

	op := "="
	rest := trimmed
	for i := 0; i < len(trimmed) && !isDigit(trimmed[i]); i++ {
		if trimmed[i] == ' ' {
			op = strings.TrimSpace(trimmed[:i])
			rest = strings.TrimSpace(trimmed[i:])
			break
		}
		if i == len(trimmed)-1 {
			return Requirement{}, fmt.Errorf("%w: requirement %q has no version", ErrMalformed, s)
		}
	}
	if op == "" {
		op = "="
	}
	if !validOps[op] {
		return Requirement{}, fmt.Errorf("%w: unknown operator %q in %q", ErrMalformed, op, s)
	}

	v, err := ParseVersion(rest)
	if err != nil {
		return Requirement{}, fmt.Errorf("%w: requirement %q", ErrMalformed, s)
	}
	return Requirement{Op: op, Version: v}, nil
}

// ParseRequirements parses a comma-joined requirement list as it appears in
// dependency API responses, e.g. ">= 1.0, < 2.0".
func ParseRequirements(s string) ([]Requirement, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, nil
	}

	var reqs []Requirement
	for _, part := range strings.Split(trimmed, ",") {
		r, err := ParseRequirement(part)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	return reqs, nil
}

// String formats the requirement in canonical ">= 1.0" form.
func (r Requirement) String() string {
	return r.Op + " " + r.Version.String()
}

// Satisfies reports whether v meets the constraint.
func (r Requirement) Satisfies(v Version) bool {
	c := v.Compare(r.Version)
	switch r.Op {
	case "=":
		return c == 0
	case "!=":
		return c != 0
	case ">":
		return c > 0
	case "<":
		return c < 0
	case ">=":
		return c >= 0
	case "<=":
		return c <= 0
	case "~>":
		return c >= 0 && v.Compare(r.Version.bump()) < 0
	}
	return false
}
