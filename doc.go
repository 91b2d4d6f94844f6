// Package pkgstore reads content-addressed packages and indexes them in a
// library.
//
// A package file is a container: a table of (BLAKE3 hash, length) entries
// followed by the payloads in table order. One entry holds the CBOR-encoded
// manifest and its hash identifies the package. An App manifest maps file
// paths to blob hashes and registers the package as the handler for a
// target; a Comic manifest lists page blobs in order.
//
// Basic usage:
//
//	pkg, _ := pkgstore.Load("reader.package")
//
//	// Resolve a path to bytes and a MIME type
//	res, ok := pkg.Get("index.html")
//
//	// Index packages by hash and by target
//	library := pkgstore.NewLibrary()
//	library.Add(pkg)
//	handler, ok := library.Handler(pkgstore.TargetComic)
//
// Loading a directory in parallel:
//
//	library := pkgstore.NewLibrary(
//	    pkgstore.WithConcurrency(8),
//	    pkgstore.WithLoadOptions(pkgstore.WithVerify()),
//	)
//	loaded, err := library.LoadDir(ctx, "packages/")
//
// Package hashes are trusted as written unless WithVerify is given, in which
// case every payload is rehashed on load. Files compressed with zstd
// (.package.zst) are decompressed transparently.
//
// Library reads never block: lookups run against an immutable snapshot that
// writers replace atomically.
package pkgstore
