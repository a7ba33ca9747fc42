// Command server is the entry point for the RecipeBox web application.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"recipebox/internal/bootstrap"
	"recipebox/internal/config"
	"recipebox/internal/middleware"
	"recipebox/internal/observability"
	"recipebox/internal/server"
)

// @title RecipeBox API
// @version 1.0
// @description Recipe sharing with moderated submissions and reviews
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@recipebox.local

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// version is reported on traces.
const version = "1.0.0"

const shutdownGrace = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopTracing, err := observability.InitTracing(ctx, observability.TracingFromConfig(cfg, version))
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	db, rdb, err := bootstrap.InitRuntime(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init runtime: %w", err)
	}
	srv, err := server.NewServerWithDeps(cfg, db, rdb)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	go func() {
		<-ctx.Done()
		middleware.Logger.Info("Shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			middleware.Logger.Error("Server shutdown failed", slog.String("error", err.Error()))
		}
		if err := stopTracing(sctx); err != nil {
			middleware.Logger.Error("Tracing shutdown failed", slog.String("error", err.Error()))
		}
	}()

	return srv.Start()
}
