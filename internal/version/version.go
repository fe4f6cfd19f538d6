// Package version handles the two version shapes this agent compares:
// package versions as reported by winget (three or four numeric
// components, e.g. "0.65.2" or "129.0.6668.90") and release-registry
// tags for self-update, which must be strict X.Y.Z semver.
package version

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Ordinal is a package version of up to four numeric components,
// compared component-wise with missing components treated as zero.
// Pre-release and build metadata semantics do not apply.
type Ordinal struct {
	parts [4]uint64
	n     int
	raw   string
}

// Parse parses a dotted numeric version of one to four components.
// A leading "v" is tolerated.
func Parse(s string) (*Ordinal, error) {
	raw := strings.TrimSpace(s)
	trimmed := strings.TrimPrefix(raw, "v")
	if trimmed == "" {
		return nil, fmt.Errorf("empty version string")
	}

	fields := strings.Split(trimmed, ".")
	if len(fields) > 4 {
		return nil, fmt.Errorf("version %q has more than four components", raw)
	}

	var o Ordinal
	o.raw = raw
	o.n = len(fields)
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("version %q: component %q is not numeric", raw, f)
		}
		o.parts[i] = v
	}
	return &o, nil
}

// MustParse is Parse for test fixtures and constants; it panics on error.
func MustParse(s string) *Ordinal {
	o, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return o
}

// Compare returns -1, 0, or 1. Missing trailing components compare as
// zero, so "1.2.3" == "1.2.3.0".
func (o *Ordinal) Compare(other *Ordinal) int {
	for i := 0; i < 4; i++ {
		switch {
		case o.parts[i] < other.parts[i]:
			return -1
		case o.parts[i] > other.parts[i]:
			return 1
		}
	}
	return 0
}

// Equal reports component-wise equality.
func (o *Ordinal) Equal(other *Ordinal) bool {
	if o == nil || other == nil {
		return o == other
	}
	return o.Compare(other) == 0
}

// Less reports whether o orders before other.
func (o *Ordinal) Less(other *Ordinal) bool {
	return o.Compare(other) < 0
}

// AtLeast reports whether o is the same as or newer than other.
func (o *Ordinal) AtLeast(other *Ordinal) bool {
	return o.Compare(other) >= 0
}

func (o *Ordinal) String() string {
	if o == nil {
		return "<none>"
	}
	return o.raw
}

// ParseReleaseTag parses a release-registry tag as a strict
// three-component semver version. A leading non-numeric prefix (such as
// "v" or "release-") is stripped first. Tags with pre-release or build
// metadata, or any shape other than X.Y.Z, are rejected.
func ParseReleaseTag(tag string) (*semver.Version, error) {
	trimmed := strings.TrimSpace(tag)
	start := strings.IndexAny(trimmed, "0123456789")
	if start < 0 {
		return nil, fmt.Errorf("release tag %q contains no version", tag)
	}
	trimmed = trimmed[start:]

	v, err := semver.StrictNewVersion(trimmed)
	if err != nil {
		return nil, fmt.Errorf("release tag %q: %w", tag, err)
	}
	if v.Prerelease() != "" || v.Metadata() != "" {
		return nil, fmt.Errorf("release tag %q is not a plain X.Y.Z version", tag)
	}
	return v, nil
}
