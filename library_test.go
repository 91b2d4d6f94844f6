package pkgstore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAppPackageWith(t *testing.T, body string) *Package {
	t.Helper()
	files, hashes := blobs(body)
	pkg, err := NewPackage(AppManifest{
		Target: TargetComic,
		Paths:  map[string]Hash{"index.html": hashes[0]},
	}, files)
	require.NoError(t, err)
	return pkg
}

func TestLibraryAdd(t *testing.T) {
	library := NewLibrary()
	pkg := newAppPackage(t)

	library.Add(pkg)

	got, ok := library.Package(pkg.Hash)
	require.True(t, ok)
	assert.Same(t, pkg, got)

	handler, ok := library.Handler(TargetComic)
	require.True(t, ok)
	assert.Same(t, pkg, handler)
}

func TestLibraryAddLoadedPackage(t *testing.T) {
	path := writePackage(t, t.TempDir(), "app.package", newAppPackage(t))
	pkg, err := Load(path)
	require.NoError(t, err)

	var library Library
	library.Add(pkg)

	got, ok := library.Package(pkg.Hash)
	require.True(t, ok)
	assert.Same(t, pkg, got)

	handler, ok := library.Handler(TargetComic)
	require.True(t, ok)
	assert.Same(t, pkg, handler)
}

func TestLibraryComicIsNotAHandler(t *testing.T) {
	library := NewLibrary()
	comic := newComicPackage(t, "page")

	library.Add(comic)

	_, ok := library.Package(comic.Hash)
	assert.True(t, ok)
	_, ok = library.Handler(TargetComic)
	assert.False(t, ok)
	assert.Empty(t, library.Handlers())
}

func TestLibraryHandlerOverwrite(t *testing.T) {
	library := NewLibrary()
	first := newAppPackageWith(t, "<html>v1</html>")
	second := newAppPackageWith(t, "<html>v2</html>")
	require.NotEqual(t, first.Hash, second.Hash)

	library.Add(first)
	library.Add(second)

	handler, ok := library.Handler(TargetComic)
	require.True(t, ok)
	assert.Same(t, second, handler)

	kept, ok := library.Package(first.Hash)
	require.True(t, ok, "previous handler stays loaded")
	assert.Same(t, first, kept)
	assert.Equal(t, 2, library.Len())
}

func TestLibraryAddSameHashReplaces(t *testing.T) {
	library := NewLibrary()
	a := newComicPackage(t, "page")
	b := newComicPackage(t, "page")
	require.Equal(t, a.Hash, b.Hash)

	library.Add(a)
	library.Add(b)

	got, ok := library.Package(a.Hash)
	require.True(t, ok)
	assert.Same(t, b, got)
	assert.Equal(t, 1, library.Len())
}

func TestLibraryMisses(t *testing.T) {
	var library Library

	_, ok := library.Package(HashBytes([]byte("unknown")))
	assert.False(t, ok)
	_, ok = library.Handler(TargetComic)
	assert.False(t, ok)
	assert.Equal(t, 0, library.Len())
}

func TestLibraryHandlerPanicsOnDanglingHash(t *testing.T) {
	library := NewLibrary()
	dangling := HashBytes([]byte("dangling"))
	library.active.Store(&librarySnapshot{
		packages: map[Hash]*Package{},
		handlers: map[Target]Hash{TargetComic: dangling},
	})

	assert.PanicsWithError(t, (&ConsistencyError{What: "handler comic", Hash: dangling}).Error(), func() {
		library.Handler(TargetComic)
	})
}

func TestLibrarySnapshots(t *testing.T) {
	library := NewLibrary()
	app := newAppPackage(t)
	comic := newComicPackage(t, "p0", "p1")
	library.AddAll(app, comic)

	packages := library.Packages()
	assert.Equal(t, map[Hash]Manifest{app.Hash: app.Manifest, comic.Hash: comic.Manifest}, packages)
	assert.Equal(t, map[Target]Hash{TargetComic: app.Hash}, library.Handlers())

	// Snapshots are copies.
	delete(packages, app.Hash)
	_, ok := library.Package(app.Hash)
	assert.True(t, ok)
}

func TestLibraryConcurrentReads(t *testing.T) {
	library := NewLibrary()
	app := newAppPackage(t)
	comic := newComicPackage(t, "p0", "p1", "p2")
	library.AddAll(app, comic)

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				handler, ok := library.Handler(TargetComic)
				if !assert.True(t, ok) || !assert.Same(t, app, handler) {
					return
				}
				got, ok := library.Package(comic.Hash)
				if !assert.True(t, ok) || !assert.Same(t, comic, got) {
					return
				}
				res, ok := got.Get("2")
				if !assert.True(t, ok) || !assert.Equal(t, []byte("p2"), res.Data) {
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestLibraryReadsDuringWritesSeeConsistentHandlers(t *testing.T) {
	library := NewLibrary()
	versions := make([]*Package, 50)
	for i := range versions {
		versions[i] = newAppPackageWith(t, "<html>"+string(rune('a'+i%26))+string(rune('A'+i/26))+"</html>")
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				// Handler panics if it ever sees a hash whose package is
				// not published yet.
				if pkg, ok := library.Handler(TargetComic); ok {
					_, found := library.Package(pkg.Hash)
					assert.True(t, found)
				}
			}
		}()
	}

	for _, pkg := range versions {
		library.Add(pkg)
	}
	close(done)
	wg.Wait()

	handler, ok := library.Handler(TargetComic)
	require.True(t, ok)
	assert.Same(t, versions[len(versions)-1], handler)
}

func TestLibraryLoadDir(t *testing.T) {
	dir := t.TempDir()
	app := newAppPackage(t)
	comic := newComicPackage(t, "p0", "p1")
	writePackage(t, dir, "app.package", app)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0755))
	writePackage(t, filepath.Join(dir, "nested"), "comic.package", comic)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0644))

	var logs bytes.Buffer
	m := NewMetrics()
	library := NewLibrary(
		WithConcurrency(2),
		WithLogger(log.New(&logs)),
		WithMetrics(m),
		WithLoadOptions(WithVerify()),
	)

	loaded, err := library.LoadDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
	assert.Equal(t, 2, library.Len())

	handler, ok := library.Handler(TargetComic)
	require.True(t, ok)
	assert.Equal(t, app.Hash, handler.Hash)
	assert.Contains(t, logs.String(), "library loaded")

	assert.Equal(t, 1, testutil.CollectAndCount(m.Registry(), "pkgstore_library_packages"))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Registry(), "pkgstore_library_lookups_total"))
}

func TestLibraryLoadFilesKeepsGoodPackages(t *testing.T) {
	dir := t.TempDir()
	good := writePackage(t, dir, "good.package", newComicPackage(t, "page"))
	bad := filepath.Join(dir, "bad.package")
	require.NoError(t, os.WriteFile(bad, []byte("short"), 0644))
	missing := filepath.Join(dir, "missing.package")

	library := NewLibrary()
	loaded, err := library.LoadFiles(context.Background(), []string{bad, good, missing})
	require.Error(t, err)
	assert.Len(t, loaded, 1)
	assert.Equal(t, 1, library.Len())

	assert.Contains(t, err.Error(), bad)
	assert.Contains(t, err.Error(), missing)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLibraryLoadFilesLaterPathWinsHandler(t *testing.T) {
	dir := t.TempDir()
	first := newAppPackageWith(t, "<html>first</html>")
	second := newAppPackageWith(t, "<html>second</html>")
	writePackage(t, dir, "b.package", second)
	writePackage(t, dir, "a.package", first)

	library := NewLibrary(WithConcurrency(8))
	_, err := library.LoadDir(context.Background(), dir)
	require.NoError(t, err)

	handler, ok := library.Handler(TargetComic)
	require.True(t, ok)
	assert.Equal(t, second.Hash, handler.Hash, "packages are added in sorted path order")
}

func TestLibraryLoadFilesCanceled(t *testing.T) {
	dir := t.TempDir()
	path := writePackage(t, dir, "app.package", newAppPackage(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	library := NewLibrary()
	loaded, err := library.LoadFiles(ctx, []string{path})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, loaded)
	assert.Equal(t, 0, library.Len())
}

func TestLibraryLoadDirMissing(t *testing.T) {
	library := NewLibrary()
	_, err := library.LoadDir(context.Background(), filepath.Join(t.TempDir(), "absent"))
	require.ErrorIs(t, err, os.ErrNotExist)

	var lerr *LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, OpWalk, lerr.Op)
}
