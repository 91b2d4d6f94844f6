// Package remote ships package files through an OCI registry.
//
// An image holds one zstd layer per package file. The image config label
// dev.pkgstore.files lists the file names in layer order, so a pull
// restores the original names even when two files share content.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/sourcegraph/conc/pool"

	"github.com/aweris/pkgstore/internal/compression"
	"github.com/aweris/pkgstore/internal/retry"
)

const (
	DefaultConcurrency = 4

	filesLabel = "dev.pkgstore.files"
	maxRetries = 3
)

type OCIRemote struct {
	ref         name.Reference
	auth        Authenticator
	concurrency int
	compressor  *compression.Compressor
	logger      *log.Logger
}

// NewOCIRemote creates a remote from a standard Docker ref (e.g., "ttl.sh/packages/comics:main")
func NewOCIRemote(imageRef string, auth Authenticator) (*OCIRemote, error) {
	ref, err := name.ParseReference(imageRef, name.WithDefaultTag("latest"))
	if err != nil {
		return nil, fmt.Errorf("invalid image ref %q: %w", imageRef, err)
	}
	compressor, err := compression.NewCompressor(2)
	if err != nil {
		return nil, fmt.Errorf("create compressor: %w", err)
	}
	return &OCIRemote{
		ref:         ref,
		auth:        auth,
		concurrency: DefaultConcurrency,
		compressor:  compressor,
		logger:      log.New(io.Discard),
	}, nil
}

// SetConcurrency sets the number of parallel operations for push/pull
func (r *OCIRemote) SetConcurrency(n int) {
	if n > 0 {
		r.concurrency = n
	}
}

// SetLogger sets the logger for push/pull progress.
func (r *OCIRemote) SetLogger(logger *log.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

func (r *OCIRemote) String() string   { return r.ref.String() }
func (r *OCIRemote) Registry() string { return r.ref.Context().RegistryStr() }
func (r *OCIRemote) Tag() string      { return r.ref.Identifier() }

// Close releases the compressor.
func (r *OCIRemote) Close() error { return r.compressor.Close() }

// blobLayer implements v1.Layer with zstd compression for remote transfer
type blobLayer struct {
	compressed   []byte
	uncompressed []byte
}

func (r *OCIRemote) newBlobLayer(data []byte) *blobLayer {
	return &blobLayer{
		compressed:   r.compressor.Compress(data),
		uncompressed: data,
	}
}

func (l *blobLayer) Digest() (v1.Hash, error) {
	h, _, err := v1.SHA256(bytes.NewReader(l.compressed))
	return h, err
}

func (l *blobLayer) DiffID() (v1.Hash, error) {
	h, _, err := v1.SHA256(bytes.NewReader(l.uncompressed))
	return h, err
}

func (l *blobLayer) Compressed() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(l.compressed)), nil
}
func (l *blobLayer) Uncompressed() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(l.uncompressed)), nil
}
func (l *blobLayer) Size() (int64, error)                { return int64(len(l.compressed)), nil }
func (l *blobLayer) MediaType() (types.MediaType, error) { return types.OCILayerZStd, nil }

// Push uploads files, keyed by file name, as one image and returns the
// pushed manifest digest.
func (r *OCIRemote) Push(ctx context.Context, files map[string][]byte) (string, error) {
	if len(files) == 0 {
		return "", fmt.Errorf("push %s: no files", r.ref)
	}

	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	slices.Sort(names)

	layers := make([]v1.Layer, 0, len(names))
	var totalRaw, totalCompressed int64
	for _, n := range names {
		layer := r.newBlobLayer(files[n])
		totalRaw += int64(len(layer.uncompressed))
		totalCompressed += int64(len(layer.compressed))
		layers = append(layers, layer)
	}

	r.logger.Info("pushing", "ref", r.ref.String(), "files", len(layers),
		"raw_bytes", totalRaw, "compressed_bytes", totalCompressed)

	img, err := r.buildImage(layers, names)
	if err != nil {
		return "", fmt.Errorf("build image: %w", err)
	}

	if err := r.pushImage(ctx, img); err != nil {
		return "", fmt.Errorf("push image: %w", err)
	}

	digest, err := img.Digest()
	if err != nil {
		return "", fmt.Errorf("image digest: %w", err)
	}

	r.logger.Info("pushed", "ref", r.ref.String(), "digest", digest.String())
	return digest.String(), nil
}

func (r *OCIRemote) buildImage(layers []v1.Layer, files []string) (v1.Image, error) {
	img, err := mutate.AppendLayers(empty.Image, layers...)
	if err != nil {
		return nil, err
	}

	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, err
	}

	filesJSON, err := json.Marshal(files)
	if err != nil {
		return nil, err
	}

	cfg = cfg.DeepCopy()
	cfg.Config.Labels = map[string]string{
		filesLabel: string(filesJSON),
	}

	return mutate.ConfigFile(img, cfg)
}

func (r *OCIRemote) pushImage(ctx context.Context, img v1.Image) error {
	options := r.remoteOptions(ctx)
	options = append(options, remote.WithJobs(r.concurrency))
	_, err := retry.Do(ctx, maxRetries, nil, func() (struct{}, error) {
		return struct{}{}, remote.Write(r.ref, img, options...)
	})
	return err
}

// Pull downloads every package file in the image, keyed by file name.
// Layers are fetched in parallel.
func (r *OCIRemote) Pull(ctx context.Context) (map[string][]byte, error) {
	img, err := retry.Do(ctx, maxRetries, nil, func() (v1.Image, error) {
		return remote.Image(r.ref, r.remoteOptions(ctx)...)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}

	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, fmt.Errorf("get config: %w", err)
	}

	var names []string
	if filesJSON := cfg.Config.Labels[filesLabel]; filesJSON != "" {
		if err := json.Unmarshal([]byte(filesJSON), &names); err != nil {
			return nil, fmt.Errorf("parse %s label: %w", filesLabel, err)
		}
	}

	layers, err := img.Layers()
	if err != nil {
		return nil, fmt.Errorf("get layers: %w", err)
	}

	r.logger.Info("pulling", "ref", r.ref.String(), "layers", len(layers))

	var mu sync.Mutex
	files := make(map[string][]byte, len(layers))

	p := pool.New().WithMaxGoroutines(r.concurrency).WithContext(ctx).WithCancelOnError()

	for i, layer := range layers {
		p.Go(func(ctx context.Context) error {
			diffID, err := layer.DiffID()
			if err != nil {
				return fmt.Errorf("layer diff id: %w", err)
			}

			rc, err := layer.Uncompressed()
			if err != nil {
				return fmt.Errorf("read layer %s: %w", diffID, err)
			}
			data, err := io.ReadAll(rc)
			if cerr := rc.Close(); cerr != nil {
				return fmt.Errorf("close layer %s: %w", diffID, cerr)
			}
			if err != nil {
				return fmt.Errorf("read layer %s: %w", diffID, err)
			}

			n := diffID.Hex + ".package"
			if i < len(names) {
				n = names[i]
			}

			mu.Lock()
			files[n] = data
			mu.Unlock()
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}

	r.logger.Info("pulled", "ref", r.ref.String(), "files", len(files))
	return files, nil
}

func (r *OCIRemote) remoteOptions(ctx context.Context) []remote.Option {
	options := []remote.Option{remote.WithContext(ctx)}
	if r.auth != nil {
		username, password, err := r.auth.Authenticate(r.Registry())
		if err == nil && username != "" {
			return append(options, remote.WithAuth(&authn.Basic{
				Username: username,
				Password: password,
			}))
		}
	}
	return append(options, remote.WithAuthFromKeychain(authn.DefaultKeychain))
}
