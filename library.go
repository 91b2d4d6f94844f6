package pkgstore

import (
	"context"
	"errors"
	"io/fs"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sourcegraph/conc/pool"
)

// Package file extensions picked up by LoadDir.
const (
	PackageExt     = ".package"
	PackageZstdExt = ".package.zst"
)

// Library indexes loaded packages by hash and tracks which App package is
// the current handler for each target.
//
// Reads are lock-free against an immutable snapshot. Writers serialize on
// a mutex and publish a new snapshot, so a reader never sees a handler
// whose package is not yet visible.
type Library struct {
	mu     sync.Mutex
	active atomic.Pointer[librarySnapshot]

	logger      *log.Logger
	metrics     *Metrics
	concurrency int
	loadOpts    []LoadOption
}

type librarySnapshot struct {
	packages map[Hash]*Package
	handlers map[Target]Hash
}

var emptySnapshot = &librarySnapshot{
	packages: map[Hash]*Package{},
	handlers: map[Target]Hash{},
}

// NewLibrary returns an empty library. The zero Library is also empty and
// ready to use.
func NewLibrary(opts ...LibraryOption) *Library {
	l := &Library{
		logger:      discardLogger(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.active.Store(emptySnapshot)
	return l
}

func (l *Library) snapshot() *librarySnapshot {
	if s := l.active.Load(); s != nil {
		return s
	}
	return emptySnapshot
}

// Add inserts pkg, replacing any package with the same hash. An App
// package also becomes the handler for its target, replacing the previous
// handler without evicting it.
func (l *Library) Add(pkg *Package) {
	l.AddAll(pkg)
}

// AddAll adds packages in order and publishes them as one snapshot.
func (l *Library) AddAll(pkgs ...*Package) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.snapshot()
	next := &librarySnapshot{
		packages: maps.Clone(cur.packages),
		handlers: maps.Clone(cur.handlers),
	}

	for _, pkg := range pkgs {
		if pkg == nil {
			continue
		}
		next.packages[pkg.Hash] = pkg
		if app, ok := pkg.Manifest.(AppManifest); ok {
			next.handlers[app.Target] = pkg.Hash
		}
	}

	l.active.Store(next)
	l.metrics.SetLibrarySize(len(next.packages), len(next.handlers))
}

// Package returns the package with the given hash.
func (l *Library) Package(h Hash) (*Package, bool) {
	pkg, ok := l.snapshot().packages[h]
	l.metrics.ObserveLookup("package", ok)
	return pkg, ok
}

// Handler returns the package currently registered for target.
func (l *Library) Handler(target Target) (*Package, bool) {
	s := l.snapshot()
	h, ok := s.handlers[target]
	if !ok {
		l.metrics.ObserveLookup("handler", false)
		return nil, false
	}
	pkg, ok := s.packages[h]
	if !ok {
		panic(&ConsistencyError{What: "handler " + string(target), Hash: h})
	}
	l.metrics.ObserveLookup("handler", true)
	return pkg, true
}

// Packages returns every loaded package's manifest keyed by package hash.
func (l *Library) Packages() map[Hash]Manifest {
	s := l.snapshot()
	out := make(map[Hash]Manifest, len(s.packages))
	for h, pkg := range s.packages {
		out[h] = pkg.Manifest
	}
	return out
}

// Handlers returns the current target to handler hash mapping.
func (l *Library) Handlers() map[Target]Hash {
	return maps.Clone(l.snapshot().handlers)
}

// Len returns the number of loaded packages.
func (l *Library) Len() int {
	return len(l.snapshot().packages)
}

// LoadDir loads every package file under dir. See LoadFiles.
func (l *Library) LoadDir(ctx context.Context, dir string) ([]*Package, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isPackageFile(d.Name()) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, &LoadError{Op: OpWalk, Path: dir, Err: err}
	}
	return l.LoadFiles(ctx, paths)
}

// LoadFiles parses paths in parallel and adds the packages that loaded, in
// sorted path order, as a single update. Failures are joined into the
// returned error, each carrying its path.
func (l *Library) LoadFiles(ctx context.Context, paths []string) ([]*Package, error) {
	paths = slices.Clone(paths)
	slices.Sort(paths)

	loaded := make([]*Package, len(paths))
	errs := make([]error, len(paths))

	logger := l.logger
	if logger == nil {
		logger = discardLogger()
	}

	p := pool.New().WithMaxGoroutines(max(l.concurrency, 1)).WithContext(ctx)
	for i, path := range paths {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				errs[i] = &LoadError{Op: OpOpen, Path: path, Err: err}
				return nil
			}

			start := time.Now()
			pkg, err := Load(path, l.loadOpts...)
			l.metrics.ObserveLoad(time.Since(start), err)
			if err != nil {
				logger.Error("load failed", "path", path, "err", err)
				errs[i] = err
				return nil
			}

			logger.Debug("loaded package", "path", path, "hash", pkg.Hash.Short(), "kind", Kind(pkg.Manifest), "blobs", pkg.Len())
			loaded[i] = pkg
			return nil
		})
	}
	_ = p.Wait()

	pkgs := slices.DeleteFunc(loaded, func(pkg *Package) bool { return pkg == nil })
	l.AddAll(pkgs...)

	logger.Info("library loaded", "packages", len(pkgs), "failed", len(paths)-len(pkgs))
	return pkgs, errors.Join(errs...)
}

func isPackageFile(name string) bool {
	return strings.HasSuffix(name, PackageExt) || strings.HasSuffix(name, PackageZstdExt)
}
