// Package compression wraps zstd for package files stored or shipped
// compressed. Compressed package files are plain zstd frames around the
// container bytes and are recognized by their magic number.
package compression
