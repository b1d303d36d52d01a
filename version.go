package promptledger

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ParseVersion parses a strict MAJOR.MINOR.PATCH semantic version (pre-release
// and build metadata allowed). Loose forms such as "1.0" or "v1.0.0" are
// rejected so every registered definition carries a fully ordered version.
func ParseVersion(s string) (*semver.Version, error) {
	v, err := semver.StrictNewVersion(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: version %q: %v", ErrMalformedDefinition, s, err)
	}
	return v, nil
}

// CompareVersions orders two version strings by semantic-version precedence,
// returning -1, 0 or +1. Logged events may carry versions from older layouts,
// so strings that do not parse leniently as semver fall back to plain lexical
// comparison instead of failing.
func CompareVersions(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	return va.Compare(vb)
}

// MaxVersion returns the higher of a and b under CompareVersions ordering.
func MaxVersion(a, b string) string {
	if CompareVersions(b, a) > 0 {
		return b
	}
	return a
}
