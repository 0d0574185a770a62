package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the service API on r.
//
//	GET /health
//	GET /api/repo/:name/files      repository tree as JSON
//	GET /api/repo/:name/file/*path raw file bytes
func RegisterRoutes(r *gin.Engine, s *Store, log *slog.Logger) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/repo/:name")

	api.GET("/files", func(c *gin.Context) {
		name := c.Param("name")
		tree, ok, err := s.Tree(name)
		if err != nil {
			log.Error("build tree", "repo", name, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "repository not found"})
			return
		}
		log.Info("tree served", "repo", name)
		c.JSON(http.StatusOK, tree)
	})

	api.GET("/file/*path", func(c *gin.Context) {
		name := c.Param("name")
		p := strings.TrimPrefix(c.Param("path"), "/")
		content, ok := s.File(name, p)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		log.Info("file served", "repo", name, "path", p, "bytes", len(content))
		c.Data(http.StatusOK, "application/octet-stream", content)
	})
}
