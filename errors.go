package pkgstore

import (
	"errors"
	"fmt"

	"github.com/aweris/pkgstore/internal/container"
)

var (
	ErrManifestIndex   = container.ErrManifestIndex
	ErrDecodeManifest  = errors.New("pkgstore: failed to deserialize manifest")
	ErrInvalidManifest = errors.New("pkgstore: invalid manifest")
	ErrMissingBlob     = errors.New("pkgstore: manifest references missing blob")
	ErrHashMismatch    = errors.New("pkgstore: blob does not match its hash")
	ErrUnknownTarget   = errors.New("pkgstore: unknown target")
)

// Load operations recorded in LoadError.Op.
const (
	OpOpen = "open"
	OpRead = "read"
	OpWalk = "walk"
)

// LoadError records the package file a load failed on and whether it
// failed while opening the file, parsing it, or walking a directory.
type LoadError struct {
	Op   string
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s package %s: %v", e.Op, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ConsistencyError is raised as a panic value when an invariant that every
// constructed package or library maintains is found broken. It marks a bug,
// never an absent path or target.
type ConsistencyError struct {
	What string
	Hash Hash
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("pkgstore: internal consistency violated: %s references missing %s", e.What, e.Hash)
}
