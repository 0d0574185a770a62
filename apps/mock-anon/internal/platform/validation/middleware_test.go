package validation_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilsley/anonmirror/apps/mock-anon/internal/platform/validation"
	"github.com/tilsley/anonmirror/schemas"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(t *testing.T, opts ...validation.Option) *gin.Engine {
	t.Helper()
	mw, err := validation.New(schemas.OpenAPISpec, opts...)
	require.NoError(t, err)

	r := gin.New()
	r.Use(mw)
	r.GET("/api/repo/:name/files", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{}) })
	r.GET("/api/repo/:name/file/*path", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func do(r *gin.Engine, path, referer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestFiles_MissingReferer_Returns400(t *testing.T) {
	w := do(newRouter(t), "/api/repo/Paper470/files", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	var rej validation.Rejection
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rej))
	assert.Equal(t, "Referer", rej.Parameter)
	assert.NotEmpty(t, rej.Error)
}

func TestFiles_MissingReferer_IsLogged(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	w := do(newRouter(t, validation.WithLogger(log)), "/api/repo/Paper470/files", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, buf.String(), "request rejected")
	assert.Contains(t, buf.String(), "operation=getRepoFiles")
	assert.Contains(t, buf.String(), "parameter=Referer")
}

func TestFiles_WithReferer_Passes(t *testing.T) {
	w := do(newRouter(t), "/api/repo/Paper470/files", "https://anonymous.4open.science/r/Paper470")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFileRoute_NotInSpec_PassesThrough(t *testing.T) {
	w := do(newRouter(t), "/api/repo/Paper470/file/a/b/c.txt", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNew_RejectsInvalidSpec(t *testing.T) {
	_, err := validation.New([]byte("openapi: [not valid"))
	assert.Error(t, err)
}
