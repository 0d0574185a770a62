// Command mock-anon serves repositories over the anonymized service's API so
// the mirror can be run end to end without the real service.
//
// SEED_DIR names a directory whose subdirectories are served as repositories;
// without it a small built-in demo repository is served. PORT defaults to 9090.
package main

import (
	"context"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tilsley/anonmirror/apps/mock-anon/internal/platform/validation"
	"github.com/tilsley/anonmirror/apps/mock-anon/internal/server"
	"github.com/tilsley/anonmirror/pkg/logging"
	"github.com/tilsley/anonmirror/pkg/telemetry"
	"github.com/tilsley/anonmirror/schemas"
)

const serviceName = "anonmirror-mock"

func main() {
	log := logging.New()

	ctx := context.Background()
	shutdown, err := telemetry.Start(ctx, telemetry.Setup{
		Enabled: os.Getenv("OTEL_ENABLED") == "true",
		Service: serviceName,
	})
	if err != nil {
		log.Error("telemetry init failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error("telemetry shutdown failed", "error", err)
		}
	}()

	store := server.NewStore()
	if dir := os.Getenv("SEED_DIR"); dir != "" {
		if err := store.LoadDir(dir); err != nil {
			log.Error("seed failed", "dir", dir, "error", err)
			os.Exit(1) //nolint:gocritic // nothing to flush yet
		}
	} else {
		server.Seed(store)
	}
	log.Info("seeded repos", "repos", store.Repos())

	validator, err := validation.New(schemas.OpenAPISpec, validation.WithLogger(log))
	if err != nil {
		log.Error("openapi validation middleware init failed", "error", err)
		os.Exit(1)
	}

	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(telemetry.ServiceName(serviceName)), validator)
	server.RegisterRoutes(router, store, log)

	port := os.Getenv("PORT")
	if port == "" {
		port = "9090"
	}
	log.Info("starting mock-anon", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
}
