// Package objects implements the versioned compute node object: its field
// schema, the compatibility engine that moves it between store records and
// version-targeted primitives, and the node resolution service.
package objects

import (
	"fmt"
	"strings"

	"github.com/coreos/go-semver/semver"
)

// Version is an object version of the form "major.minor"
type Version struct {
	v semver.Version
}

// ParseVersion parses "X.Y"
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if strings.Count(s, ".") != 1 {
		return Version{}, fmt.Errorf("invalid object version %q", s)
	}
	v, err := semver.NewVersion(s + ".0")
	if err != nil {
		return Version{}, fmt.Errorf("invalid object version %q: %w", s, err)
	}
	if v.PreRelease != "" || v.Metadata != "" {
		return Version{}, fmt.Errorf("invalid object version %q", s)
	}
	return Version{v: *v}, nil
}

// MustParseVersion is ParseVersion for package-level tables
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) Major() int64 { return v.v.Major }
func (v Version) Minor() int64 { return v.v.Minor }

// Compare returns -1, 0 or 1
func (v Version) Compare(o Version) int {
	return v.v.Compare(o.v)
}

func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }

// IsZero reports whether v is the unset version "0.0"
func (v Version) IsZero() bool {
	return v.v.Major == 0 && v.v.Minor == 0
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.v.Major, v.v.Minor)
}
