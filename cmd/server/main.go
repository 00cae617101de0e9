package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"access-assistant/internal/di"
	"access-assistant/internal/infrastructure/env"
	"access-assistant/internal/infrastructure/server"
)

func main() {
	envService := env.NewEnvService()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := di.NewContainer(ctx, di.Config{
		OpenRouterAPIKey: envService.MustGet("OPENROUTER_API_KEY"),
		JudgeModel:       envService.MustGet("OPENROUTER_MODEL_NAME"),
		PlannerModel:     envService.Get("PLANNER_MODEL_NAME"),
		BrowserHeadless:  envService.GetBool("BROWSER_HEADLESS", true),
		DisableJudge:     envService.GetBool("DISABLE_JUDGE", false),
		ActionTimeout:    envService.GetDuration("ACTION_TIMEOUT", 0),
		SettleInterval:   envService.GetDuration("SETTLE_INTERVAL", 0),
		PlanningTimeout:  envService.GetDuration("PLANNING_TIMEOUT", 0),
		SessionTTL:       envService.GetDuration("SESSION_TTL", 0),
		SessionCapacity:  envService.GetInt("SESSION_CAPACITY", 0),
		LogDebug:         envService.GetBool("LOG_DEBUG", false),
	})
	if err != nil {
		log.Fatalf("initialization failed: %v", err)
	}
	defer container.Close()

	srv := server.New(container.Engine, container.Logger, server.Config{
		Addr: envService.Get("HTTP_ADDR"),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		container.Logger.Error("Server stopped with error", "error", err)
	}
}
