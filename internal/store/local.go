package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aweris/pkgstore"
	"github.com/aweris/pkgstore/internal/compression"
)

// LocalStore implements Store on a directory. Packages are written as
// received: a zstd-compressed upload keeps the .package.zst extension.
type LocalStore struct {
	dir      string
	loadOpts []pkgstore.LoadOption
}

var _ Store = (*LocalStore)(nil)

func NewLocalStore(dir string, opts ...pkgstore.LoadOption) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return &LocalStore{dir: dir, loadOpts: opts}, nil
}

// Dir returns the store root, suitable for Library.LoadDir.
func (s *LocalStore) Dir() string { return s.dir }

// Put stores data if it parses as a package. Storing a package that is
// already present is a no-op.
func (s *LocalStore) Put(ctx context.Context, data []byte) (pkgstore.Hash, string, error) {
	if err := ctx.Err(); err != nil {
		return pkgstore.Hash{}, "", err
	}

	pkg, err := pkgstore.Read(bytes.NewReader(data), s.loadOpts...)
	if err != nil {
		return pkgstore.Hash{}, "", fmt.Errorf("invalid package: %w", err)
	}

	ext := pkgstore.PackageExt
	if compression.IsZstd(data) {
		ext = pkgstore.PackageZstdExt
	}

	// A package stored under the other extension counts as present.
	if path, ok := s.Path(pkg.Hash); ok {
		return pkg.Hash, path, nil
	}

	path := s.objectPath(pkg.Hash, ext)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return pkgstore.Hash{}, "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return pkgstore.Hash{}, "", fmt.Errorf("failed to write package: %w", err)
	}
	return pkg.Hash, path, nil
}

// Path reports where the package with hash h is stored.
func (s *LocalStore) Path(h pkgstore.Hash) (string, bool) {
	for _, ext := range []string{pkgstore.PackageExt, pkgstore.PackageZstdExt} {
		path := s.objectPath(h, ext)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// List returns the paths of all stored package files, sorted.
func (s *LocalStore) List(ctx context.Context) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		name := d.Name()
		if !d.IsDir() && (strings.HasSuffix(name, pkgstore.PackageExt) || strings.HasSuffix(name, pkgstore.PackageZstdExt)) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(paths)
	return paths, nil
}

// objectPath returns the filesystem path for a package hash.
// Git-style sharding: ab/cd123...
func (s *LocalStore) objectPath(h pkgstore.Hash, ext string) string {
	hex := h.String()
	return filepath.Join(s.dir, hex[:2], hex[2:]+ext)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		return errors.Join(err, tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
