package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/relaydesk/relaydesk-backend/internal/app"
	"github.com/relaydesk/relaydesk-backend/internal/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New()
	if err != nil {
		log.Fatalf("startup: %v", err)
	}

	otelShutdown := observability.InitOTel(ctx, a.Log, observability.OtelConfig{
		ServiceName: "relaydesk-backend",
		Environment: a.Cfg.Environment,
		Version:     version,
	})

	if err := a.Start(ctx); err != nil {
		a.Log.Fatal("startup", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Serve(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.Shutdown(shutdownCtx)
		if otelShutdown != nil {
			if err := otelShutdown(shutdownCtx); err != nil {
				a.Log.Warn("otel shutdown", "error", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		a.Log.Error("server exited", "error", err)
	}
}

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"
