package pkgstore

import (
	"fmt"

	"github.com/aweris/pkgstore/internal/codec"
)

// Manifest describes how a package's blobs map to servable paths. It is a
// closed union: AppManifest and ComicManifest are the only implementations.
type Manifest interface {
	// Hashes lists every blob the manifest references, in manifest order.
	Hashes() []Hash

	isManifest()
}

// AppManifest is a web-style bundle registered as the handler for Target.
type AppManifest struct {
	Target Target
	Paths  map[string]Hash
}

// ComicManifest is an ordered set of page images. A page's index is its
// public identity.
type ComicManifest struct {
	Pages []Hash
}

func (AppManifest) isManifest()   {}
func (ComicManifest) isManifest() {}

func (m AppManifest) Hashes() []Hash {
	hashes := make([]Hash, 0, len(m.Paths))
	for _, h := range m.Paths {
		hashes = append(hashes, h)
	}
	return hashes
}

func (m ComicManifest) Hashes() []Hash {
	return append([]Hash(nil), m.Pages...)
}

// Kind returns the wire name of the manifest's variant.
func Kind(m Manifest) string {
	switch m.(type) {
	case AppManifest:
		return "app"
	case ComicManifest:
		return "comic"
	default:
		panic(fmt.Sprintf("pkgstore: unhandled manifest type %T", m))
	}
}

// Wire form: an externally tagged union with the variant name as the only
// map key.
type appWire struct {
	Target Target          `cbor:"target"`
	Paths  map[string]Hash `cbor:"paths"`
}

type comicWire struct {
	Pages []Hash `cbor:"pages"`
}

type manifestWire struct {
	App   *appWire   `cbor:"app,omitempty"`
	Comic *comicWire `cbor:"comic,omitempty"`
}

// EncodeManifest returns the canonical encoding of m.
func EncodeManifest(m Manifest) ([]byte, error) {
	var wire manifestWire
	switch m := m.(type) {
	case AppManifest:
		if !m.Target.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, m.Target)
		}
		paths := m.Paths
		if paths == nil {
			paths = map[string]Hash{}
		}
		wire.App = &appWire{Target: m.Target, Paths: paths}
	case ComicManifest:
		pages := m.Pages
		if pages == nil {
			pages = []Hash{}
		}
		wire.Comic = &comicWire{Pages: pages}
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrInvalidManifest, m)
	}
	return codec.Marshal(wire)
}

// DecodeManifest decodes a manifest blob.
func DecodeManifest(data []byte) (Manifest, error) {
	var wire manifestWire
	if err := codec.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeManifest, err)
	}

	switch {
	case wire.App != nil && wire.Comic != nil:
		return nil, fmt.Errorf("%w: multiple variants", ErrInvalidManifest)
	case wire.App != nil:
		if !wire.App.Target.Valid() {
			return nil, fmt.Errorf("%w: %w: %q", ErrInvalidManifest, ErrUnknownTarget, wire.App.Target)
		}
		paths := wire.App.Paths
		if paths == nil {
			paths = map[string]Hash{}
		}
		return AppManifest{Target: wire.App.Target, Paths: paths}, nil
	case wire.Comic != nil:
		return ComicManifest{Pages: wire.Comic.Pages}, nil
	default:
		return nil, fmt.Errorf("%w: no known variant", ErrInvalidManifest)
	}
}

// EncodePackages encodes a hash to manifest listing, the body served for
// the packages endpoint.
func EncodePackages(packages map[Hash]Manifest) ([]byte, error) {
	wire := make(map[Hash]codec.RawMessage, len(packages))
	for h, m := range packages {
		data, err := EncodeManifest(m)
		if err != nil {
			return nil, fmt.Errorf("encode manifest %s: %w", h, err)
		}
		wire[h] = data
	}
	return codec.Marshal(wire)
}

// DecodePackages is the inverse of EncodePackages.
func DecodePackages(data []byte) (map[Hash]Manifest, error) {
	var wire map[Hash]codec.RawMessage
	if err := codec.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode packages: %w", err)
	}
	packages := make(map[Hash]Manifest, len(wire))
	for h, raw := range wire {
		m, err := DecodeManifest(raw)
		if err != nil {
			return nil, fmt.Errorf("decode manifest %s: %w", h, err)
		}
		packages[h] = m
	}
	return packages, nil
}

// EncodeHandlers encodes a target to package hash listing.
func EncodeHandlers(handlers map[Target]Hash) ([]byte, error) {
	if handlers == nil {
		handlers = map[Target]Hash{}
	}
	return codec.Marshal(handlers)
}

// DecodeHandlers is the inverse of EncodeHandlers. Unknown targets fail.
func DecodeHandlers(data []byte) (map[Target]Hash, error) {
	var handlers map[Target]Hash
	if err := codec.Unmarshal(data, &handlers); err != nil {
		return nil, fmt.Errorf("decode handlers: %w", err)
	}
	for t := range handlers {
		if !t.Valid() {
			return nil, fmt.Errorf("decode handlers: %w: %q", ErrUnknownTarget, t)
		}
	}
	if handlers == nil {
		handlers = map[Target]Hash{}
	}
	return handlers, nil
}
