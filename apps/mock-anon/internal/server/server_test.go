package server_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilsley/anonmirror/apps/mock-anon/internal/server"
	"github.com/tilsley/anonmirror/pkg/repotree"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(s *server.Store) *gin.Engine {
	r := gin.New()
	server.RegisterRoutes(r, s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return r
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

// ─── Store ────────────────────────────────────────────────────────────────────

func TestStore_Tree(t *testing.T) {
	s := server.NewStore()
	s.PutFile("X", "a.txt", []byte("A"))
	s.PutFile("X", "/sub/b.txt", []byte("BB"))
	s.PutDir("X", "empty")

	tree, ok, err := s.Tree("X")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, repotree.Tree{
		"a.txt": repotree.File{Size: 1},
		"sub":   repotree.Dir{Children: repotree.Tree{"b.txt": repotree.File{Size: 2}}},
		"empty": repotree.Dir{Children: repotree.Tree{}},
	}, tree)

	_, ok, err = s.Tree("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_LoadDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Repo1", "src", "empty"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Repo1", "src", "main.go"), []byte("package main\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "ignored.txt"), []byte("x"), 0o644))

	s := server.NewStore()
	require.NoError(t, s.LoadDir(root))
	assert.Equal(t, []string{"Repo1"}, s.Repos())

	tree, ok, err := s.Tree("Repo1")
	require.NoError(t, err)
	require.True(t, ok)
	st := tree.Stats()
	assert.Equal(t, 1, st.Files)
	assert.Equal(t, 2, st.Dirs)

	content, ok := s.File("Repo1", "src/main.go")
	require.True(t, ok)
	assert.Equal(t, "package main\n", string(content))
}

func TestStore_LoadDirMissing(t *testing.T) {
	assert.Error(t, server.NewStore().LoadDir(filepath.Join(t.TempDir(), "nope")))
}

// ─── Routes ───────────────────────────────────────────────────────────────────

func TestRoutes_Files(t *testing.T) {
	s := server.NewStore()
	server.Seed(s)
	r := newRouter(s)

	w := get(r, "/api/repo/Paper470/files")
	require.Equal(t, http.StatusOK, w.Code)

	var tree repotree.Tree
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tree))
	assert.Contains(t, tree.Names(), "ReverseTool")
	assert.Contains(t, tree.Names(), "scripts")
	assert.Equal(t, 9, tree.Stats().Files)
}

func TestRoutes_FilesUnknownRepo(t *testing.T) {
	w := get(newRouter(server.NewStore()), "/api/repo/Nope/files")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoutes_File(t *testing.T) {
	s := server.NewStore()
	server.Seed(s)
	r := newRouter(s)

	w := get(r, "/api/repo/Paper470/file/ReverseTool/index.js")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "reverse()")

	w = get(r, "/api/repo/Paper470/file/data/notes%231%3F.txt")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "reserved characters in a file name\n", w.Body.String())

	w = get(r, "/api/repo/Paper470/file/data/results%202022.csv")
	require.Equal(t, http.StatusOK, w.Code)

	w = get(r, "/api/repo/Paper470/file/missing.txt")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoutes_Health(t *testing.T) {
	w := get(newRouter(server.NewStore()), "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
