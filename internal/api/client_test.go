package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aweris/pkgstore"
	"github.com/aweris/pkgstore/internal/codec"
	"github.com/aweris/pkgstore/internal/retry"
)

func init() {
	retry.BaseDelay = time.Millisecond
}

func newLibrary(t *testing.T) *pkgstore.Library {
	t.Helper()
	page := []byte("page")
	comic, err := pkgstore.NewPackage(pkgstore.ComicManifest{Pages: []pkgstore.Hash{pkgstore.HashBytes(page)}},
		map[pkgstore.Hash][]byte{pkgstore.HashBytes(page): page})
	require.NoError(t, err)

	index := []byte("<html>")
	app, err := pkgstore.NewPackage(pkgstore.AppManifest{
		Target: pkgstore.TargetComic,
		Paths:  map[string]pkgstore.Hash{"index.html": pkgstore.HashBytes(index)},
	}, map[pkgstore.Hash][]byte{pkgstore.HashBytes(index): index})
	require.NoError(t, err)

	library := pkgstore.NewLibrary()
	library.AddAll(comic, app)
	return library
}

// serve exposes library the way a remote library does, under prefix.
func serve(t *testing.T, prefix string, library *pkgstore.Library) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(prefix+PackagesPath, func(w http.ResponseWriter, r *http.Request) {
		body, err := pkgstore.EncodePackages(library.Packages())
		require.NoError(t, err)
		w.Write(body)
	})
	mux.HandleFunc(prefix+HandlersPath, func(w http.ResponseWriter, r *http.Request) {
		body, err := pkgstore.EncodeHandlers(library.Handlers())
		require.NoError(t, err)
		w.Write(body)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientFetchesListings(t *testing.T) {
	library := newLibrary(t)
	srv := serve(t, "/", library)

	c, err := New(srv.URL + "/")
	require.NoError(t, err)

	packages, err := c.Packages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, library.Packages(), packages)

	handlers, err := c.Handlers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, library.Handlers(), handlers)
}

func TestClientResolvesRelativeToPage(t *testing.T) {
	library := newLibrary(t)
	srv := serve(t, "/viewer/", library)

	c, err := New(srv.URL + "/viewer/index.html?page=3#top")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/viewer/api/packages", c.URL(PackagesPath))

	handlers, err := c.Handlers(context.Background())
	require.NoError(t, err)
	assert.Len(t, handlers, 1)
}

func TestClientStatusError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := New(srv.URL + "/")
	require.NoError(t, err)

	_, err = c.Packages(context.Background())
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusNotFound, serr.StatusCode)
	assert.Equal(t, srv.URL+"/api/packages", serr.URL)
	assert.Equal(t, int32(1), calls.Load(), "status failures are not retried")
}

func TestClientDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("definitely not cbor {"))
	}))
	defer srv.Close()

	c, err := New(srv.URL + "/")
	require.NoError(t, err)

	_, err = c.Handlers(context.Background())
	var derr *DecodeError
	require.ErrorAs(t, err, &derr)
	assert.Contains(t, derr.Error(), srv.URL+"/api/handlers")
}

func TestClientRejectsShortHashes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := codec.Marshal(map[string][]byte{"comic": bytes.Repeat([]byte{0xab}, 20)})
		require.NoError(t, err)
		w.Write(body)
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)

	handlers, err := c.Handlers(context.Background())
	var derr *DecodeError
	require.ErrorAs(t, err, &derr)
	assert.Nil(t, handlers)
}

func TestClientRequestErrorIsRetried(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url+"/", WithAttempts(2))
	require.NoError(t, err)

	_, err = c.Packages(context.Background())
	var rerr *RequestError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, url+"/api/packages", rerr.URL)
}

func TestNewRejectsRelativeBase(t *testing.T) {
	_, err := New("/relative/only")
	require.Error(t, err)

	_, err = New("http://[::1")
	require.Error(t, err)
}
