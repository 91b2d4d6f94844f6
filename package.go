package pkgstore

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"mime"
	"os"
	"path"
	"slices"
	"strconv"

	"github.com/aweris/pkgstore/internal/compression"
	"github.com/aweris/pkgstore/internal/container"
)

const (
	defaultMIMEType = "application/octet-stream"
	comicMIMEType   = "image/jpeg"
)

// Package is a manifest plus the blobs it references, keyed by hash.
// Packages are immutable once constructed.
type Package struct {
	// Hash identifies the package: the table-of-contents hash of its
	// manifest entry.
	Hash     Hash
	Manifest Manifest

	files map[Hash][]byte
}

// Resource is the result of resolving a path inside a package.
type Resource struct {
	MIMEType string
	Data     []byte
}

// Load reads the package file at path. Files compressed with zstd are
// decompressed transparently.
func Load(path string, opts ...LoadOption) (*Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Op: OpOpen, Path: path, Err: err}
	}
	defer f.Close()

	pkg, err := Read(f, opts...)
	if err != nil {
		return nil, &LoadError{Op: OpRead, Path: path, Err: err}
	}
	return pkg, nil
}

// Read parses a package container from r.
func Read(r io.Reader, opts ...LoadOption) (*Package, error) {
	o := defaultLoadOptions()
	for _, opt := range opts {
		opt(o)
	}

	br := bufio.NewReader(r)
	if magic, err := br.Peek(compression.MagicSize); err == nil && compression.IsZstd(magic) {
		zr, err := compression.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open zstd stream: %w", err)
		}
		defer zr.Close()
		br = bufio.NewReader(zr)
	}

	// The payload layout depends on every entry length, so the whole table
	// is read before any payload.
	header, err := container.ReadHeader(br)
	if err != nil {
		return nil, err
	}

	payloads, err := container.ReadPayloads(br, header.Entries)
	if err != nil {
		return nil, err
	}

	files := make(map[Hash][]byte, len(payloads))
	for h, data := range payloads {
		files[Hash(h)] = data
	}

	if o.verify {
		for h, data := range files {
			if got := HashBytes(data); got != h {
				return nil, fmt.Errorf("%w: entry %s hashes to %s", ErrHashMismatch, h, got)
			}
		}
	}

	hash := Hash(header.Manifest().Hash)
	manifest, err := DecodeManifest(files[hash])
	if err != nil {
		return nil, err
	}

	if err := checkReferences(manifest, files); err != nil {
		return nil, err
	}

	return &Package{Hash: hash, Manifest: manifest, files: files}, nil
}

// NewPackage builds a package in memory. The manifest is encoded and
// stored alongside files, and its hash becomes the package hash. files is
// copied; every hash the manifest references must be present in it.
func NewPackage(manifest Manifest, files map[Hash][]byte) (*Package, error) {
	encoded, err := EncodeManifest(manifest)
	if err != nil {
		return nil, err
	}

	table := make(map[Hash][]byte, len(files)+1)
	for h, data := range files {
		table[h] = slices.Clone(data)
	}
	if err := checkReferences(manifest, table); err != nil {
		return nil, err
	}

	hash := HashBytes(encoded)
	table[hash] = encoded

	return &Package{Hash: hash, Manifest: manifest, files: table}, nil
}

func checkReferences(m Manifest, files map[Hash][]byte) error {
	for _, h := range m.Hashes() {
		if _, ok := files[h]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingBlob, h)
		}
	}
	return nil
}

// Get resolves a logical path to servable bytes. The second result is false
// when the path does not exist in the package.
func (p *Package) Get(name string) (Resource, bool) {
	switch m := p.Manifest.(type) {
	case AppManifest:
		h, ok := m.Paths[name]
		if !ok {
			return Resource{}, false
		}
		return Resource{MIMEType: mimeTypeFor(name), Data: p.mustBlob(h)}, true

	case ComicManifest:
		page, ok := parsePage(name)
		if !ok || page >= uint64(len(m.Pages)) {
			return Resource{}, false
		}
		return Resource{MIMEType: comicMIMEType, Data: p.mustBlob(m.Pages[page])}, true

	default:
		panic(fmt.Sprintf("pkgstore: unhandled manifest type %T", m))
	}
}

// mustBlob returns a copy of a blob the manifest references. A miss means
// the package was built without checkReferences.
func (p *Package) mustBlob(h Hash) []byte {
	data, ok := p.files[h]
	if !ok {
		panic(&ConsistencyError{What: "manifest", Hash: h})
	}
	return slices.Clone(data)
}

// Blob returns a copy of the blob stored under h.
func (p *Package) Blob(h Hash) ([]byte, bool) {
	data, ok := p.files[h]
	if !ok {
		return nil, false
	}
	return slices.Clone(data), true
}

// Len returns the number of blobs in the package, manifest included.
func (p *Package) Len() int {
	return len(p.files)
}

// Files iterates over the blob table in hash order. Yielded slices are
// shared with the package and must not be modified.
func (p *Package) Files() iter.Seq2[Hash, []byte] {
	return func(yield func(Hash, []byte) bool) {
		for _, h := range SortedHashes(p.files) {
			if !yield(h, p.files[h]) {
				return
			}
		}
	}
}

// WriteTo encodes the package as a container: the manifest first, then the
// remaining blobs in hash order.
func (p *Package) WriteTo(w io.Writer) (int64, error) {
	manifest, ok := p.files[p.Hash]
	if !ok {
		panic(&ConsistencyError{What: "package", Hash: p.Hash})
	}

	blobs := make([]container.Blob, 0, len(p.files))
	blobs = append(blobs, container.Blob{Hash: p.Hash, Data: manifest})
	for h, data := range p.Files() {
		if h == p.Hash {
			continue
		}
		blobs = append(blobs, container.Blob{Hash: h, Data: data})
	}

	return container.Write(w, 0, blobs)
}

// parsePage parses a decimal page index. A single leading '+' is allowed.
func parsePage(name string) (uint64, bool) {
	if len(name) > 1 && name[0] == '+' {
		name = name[1:]
	}
	page, err := strconv.ParseUint(name, 10, 64)
	return page, err == nil
}

// mimeTypeFor guesses the type from the extension. The table comes from
// the host's mime.types files on top of Go's builtin set, so results for
// uncommon extensions vary by host.
func mimeTypeFor(name string) string {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return defaultMIMEType
}
