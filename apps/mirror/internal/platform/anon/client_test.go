package anon_test

import (
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilsley/anonmirror/apps/mirror/internal/config"
	"github.com/tilsley/anonmirror/apps/mirror/internal/platform/anon"
	"github.com/tilsley/anonmirror/apps/mirror/internal/remote"
	"github.com/tilsley/anonmirror/pkg/repotree"
)

var repo = remote.Repo{Source: remote.SourceAnon, Name: "MyRepo"}

type recorder struct {
	mu       sync.Mutex
	paths    []string
	rawPaths []string
	headers  []http.Header
}

func (r *recorder) record(req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, req.URL.Path)
	r.rawPaths = append(r.rawPaths, req.URL.EscapedPath())
	r.headers = append(r.headers, req.Header.Clone())
}

func newServer(t *testing.T, rec *recorder, h http.HandlerFunc) *anon.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := anon.NewClient(srv.URL, config.DefaultHeaders().HTTPHeader())
	require.NoError(t, err)
	return c
}

// ─── FetchTree ────────────────────────────────────────────────────────────────

func TestFetchTree_DecodesTreeAndSendsProfile(t *testing.T) {
	rec := &recorder{}
	c := newServer(t, rec, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"a.txt":{"size":10},"sub":{"b.txt":{"size":5}}}`))
	})

	tree, err := c.FetchTree(context.Background(), repo)
	require.NoError(t, err)
	assert.Equal(t, repotree.Stats{Dirs: 1, Files: 2, Bytes: 15}, tree.Stats())

	require.Len(t, rec.paths, 1)
	assert.Equal(t, "/api/repo/MyRepo/files", rec.paths[0])

	h := rec.headers[0]
	assert.Equal(t, "same-origin", h.Get("Sec-Fetch-Site"))
	assert.Equal(t, "https://anonymous.4open.science/r/Paper470/ReverseTool/package-lock.json", h.Get("Referer"))
	assert.Contains(t, h.Get("Cookie"), "_ga=")
}

func TestFetchTree_GzipBodyIsDecoded(t *testing.T) {
	rec := &recorder{}
	c := newServer(t, rec, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			http.Error(w, "expected gzip", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte(`{"only.txt":{"size":1}}`))
		_ = gz.Close()
	})

	tree, err := c.FetchTree(context.Background(), repo)
	require.NoError(t, err)
	assert.Equal(t, repotree.File{Size: 1}, tree["only.txt"])
}

func TestFetchTree_BadJSON_ReturnsFetchError(t *testing.T) {
	c := newServer(t, &recorder{}, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[1,2,3]`))
	})

	_, err := c.FetchTree(context.Background(), repo)
	var fe *remote.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, remote.OpFetchStructure, fe.Op)
	assert.Contains(t, err.Error(), "fetch structure /api/repo/MyRepo/files")
}

// ─── FetchFile ────────────────────────────────────────────────────────────────

func TestFetchFile_ReturnsRawBytes(t *testing.T) {
	rec := &recorder{}
	c := newServer(t, rec, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte{0x00, 0xff, 'h', 'i'})
	})

	b, err := c.FetchFile(context.Background(), repo, "/sub/b.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xff, 'h', 'i'}, b)
	assert.Equal(t, "/api/repo/MyRepo/file/sub/b.txt", rec.paths[0])
}

func TestFetchFile_EscapesSegments(t *testing.T) {
	rec := &recorder{}
	c := newServer(t, rec, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	_, err := c.FetchFile(context.Background(), repo, "/sub dir/c#1?.txt")
	require.NoError(t, err)
	assert.Equal(t, "/api/repo/MyRepo/file/sub dir/c#1?.txt", rec.paths[0])
	assert.Equal(t, "/api/repo/MyRepo/file/sub%20dir/c%231%3F.txt", rec.rawPaths[0])
}

func TestFetchFile_Non2xx_ReturnsFetchErrorWithStatus(t *testing.T) {
	c := newServer(t, &recorder{}, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})

	_, err := c.FetchFile(context.Background(), repo, "/a.txt")
	require.Error(t, err)

	var fe *remote.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, remote.OpFetchFile, fe.Op)
	assert.Equal(t, "/a.txt", fe.Path)

	var se *remote.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestFetchFile_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c, err := anon.NewClient(srv.URL, http.Header{}, anon.WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	_, err = c.FetchFile(context.Background(), repo, "/slow.txt")
	var fe *remote.FetchError
	require.ErrorAs(t, err, &fe)
}

func TestWithTimeout_IndependentOfOptionOrder(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	before := &http.Client{}
	after := &http.Client{}
	for name, opts := range map[string][]anon.Option{
		"timeout first": {anon.WithTimeout(50 * time.Millisecond), anon.WithHTTPClient(before)},
		"timeout last":  {anon.WithHTTPClient(after), anon.WithTimeout(50 * time.Millisecond)},
	} {
		c, err := anon.NewClient(srv.URL, http.Header{}, opts...)
		require.NoError(t, err, name)

		_, err = c.FetchFile(context.Background(), repo, "/slow.txt")
		var fe *remote.FetchError
		require.ErrorAs(t, err, &fe, name)
	}

	assert.Zero(t, before.Timeout, "caller's client is not modified")
	assert.Zero(t, after.Timeout, "caller's client is not modified")
}

func TestNewClient_RejectsRelativeBase(t *testing.T) {
	_, err := anon.NewClient("localhost:9090", nil)
	assert.Error(t, err)
}
