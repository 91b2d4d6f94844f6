// Package api is the client for a remote library's read-only listing
// endpoints. Response bodies use the same encoding as manifests.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/aweris/pkgstore"
	"github.com/aweris/pkgstore/internal/retry"
)

const (
	PackagesPath = "api/packages"
	HandlersPath = "api/handlers"

	DefaultAttempts = 3
	DefaultTimeout  = 30 * time.Second
)

// RequestError means the request could not be completed.
type RequestError struct {
	URL string
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// StatusError means the server answered with a non-success status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("response from %s failed with %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// DecodeError means the response body did not decode.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("deserializing response from %s failed: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type Client struct {
	base     *url.URL
	http     *http.Client
	attempts int
}

type Option func(*Client)

// WithHTTPClient replaces the default client, which has a 30s timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithAttempts sets how many times a request that fails in transport is
// tried. Status and decode failures are never retried.
func WithAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// New returns a client resolving endpoint paths against base. The
// fragment and query of base are dropped.
func New(base string, opts ...Option) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", base, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", base)
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = ""

	c := &Client{
		base:     u,
		http:     &http.Client{Timeout: DefaultTimeout},
		attempts: DefaultAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Packages fetches every package's manifest keyed by package hash.
func (c *Client) Packages(ctx context.Context) (map[pkgstore.Hash]pkgstore.Manifest, error) {
	return get(ctx, c, PackagesPath, pkgstore.DecodePackages)
}

// Handlers fetches the target to handler package mapping.
func (c *Client) Handlers(ctx context.Context) (map[pkgstore.Target]pkgstore.Hash, error) {
	return get(ctx, c, HandlersPath, pkgstore.DecodeHandlers)
}

// URL returns the absolute URL for an endpoint path.
func (c *Client) URL(path string) string {
	return c.base.ResolveReference(&url.URL{Path: path}).String()
}

func get[T any](ctx context.Context, c *Client, path string, decode func([]byte) (T, error)) (T, error) {
	var zero T
	target := c.URL(path)

	body, err := retry.Do(ctx, c.attempts, isTransient, func() ([]byte, error) {
		return c.fetch(ctx, target)
	})
	if err != nil {
		return zero, err
	}

	v, err := decode(body)
	if err != nil {
		return zero, &DecodeError{URL: target, Err: err}
	}
	return v, nil
}

func (c *Client) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &RequestError{URL: target, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RequestError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: target, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{URL: target, Err: err}
	}
	return body, nil
}

func isTransient(err error) bool {
	var rerr *RequestError
	return errors.As(err, &rerr) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
