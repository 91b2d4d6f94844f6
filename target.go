package pkgstore

import (
	"fmt"
	"slices"
)

// Target is an application category a package can register itself as the
// handler for. The set is closed; adding one is a code change.
type Target string

const (
	TargetComic Target = "comic"
)

var targets = []Target{TargetComic}

// Targets returns every known target in order.
func Targets() []Target {
	return slices.Clone(targets)
}

// Valid reports whether t is a known target.
func (t Target) Valid() bool {
	return slices.Contains(targets, t)
}

func (t Target) String() string { return string(t) }

// ParseTarget returns the target with the given name.
func ParseTarget(name string) (Target, error) {
	t := Target(name)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTarget, name)
	}
	return t, nil
}
