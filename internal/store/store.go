// Package store keeps package files on the local filesystem, addressed by
// package hash.
//
// Files are sharded by the first byte of the hash, git style:
//
//	dir/
//	  ab/cdef0123....package
//	  12/3456789a....package.zst
package store

import (
	"context"

	"github.com/aweris/pkgstore"
)

// Store holds validated package files.
type Store interface {
	// Put validates data as a package container and stores it under the
	// package hash.
	Put(ctx context.Context, data []byte) (pkgstore.Hash, string, error)

	// Path returns the file holding the package, if stored.
	Path(h pkgstore.Hash) (string, bool)

	// List returns every stored package file path in hash order.
	List(ctx context.Context) ([]string, error)
}
