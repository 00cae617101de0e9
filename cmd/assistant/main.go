package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"access-assistant/internal/application/port/output"
	"access-assistant/internal/di"
	"access-assistant/internal/infrastructure/env"
)

func main() {
	envService := env.NewEnvService()

	fmt.Println("\nWhat would you like to do on the web?")
	reader := bufio.NewReader(os.Stdin)
	intent, err := reader.ReadString('\n')
	if err != nil {
		log.Fatal("failed to read input: ", err)
	}
	intent = strings.TrimSpace(intent)
	if intent == "" {
		log.Fatal("empty intent")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	container, err := di.NewContainer(ctx, di.Config{
		OpenRouterAPIKey: envService.MustGet("OPENROUTER_API_KEY"),
		JudgeModel:       envService.MustGet("OPENROUTER_MODEL_NAME"),
		PlannerModel:     envService.Get("PLANNER_MODEL_NAME"),
		BrowserHeadless:  envService.GetBool("BROWSER_HEADLESS", false),
		DisableJudge:     envService.GetBool("DISABLE_JUDGE", false),
		ActionTimeout:    envService.GetDuration("ACTION_TIMEOUT", 0),
		SettleInterval:   envService.GetDuration("SETTLE_INTERVAL", 0),
		PlanningTimeout:  envService.GetDuration("PLANNING_TIMEOUT", 0),
		LogDebug:         envService.GetBool("LOG_DEBUG", false),
	})
	if err != nil {
		log.Fatalf("initialization failed: %v", err)
	}
	defer container.Close()

	sessionID := "cli-" + uuid.NewString()
	startURL := envService.Get("START_URL")

	plan, err := container.Engine.SubmitIntent(ctx, sessionID, "cli", intent, output.PageContext{URL: startURL})
	if err != nil {
		container.Logger.Error("Planning failed", "error", err)
		fmt.Printf("\nCould not build a plan: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nPlan (%d steps, ~%s):\n", len(plan.Actions), plan.EstimatedDuration.Round(time.Second))
	for i, a := range plan.Actions {
		marker := " "
		if plan.HasCheckpoint(a.ID) {
			marker = "!"
		}
		fmt.Printf(" %s %d. %s %s -> %s\n", marker, i+1, a.Kind, a.Target, a.ExpectedOutcome)
	}

	results, err := container.Engine.Execute(ctx, plan.ID)
	if err != nil {
		log.Fatalf("execution failed to start: %v", err)
	}

	maybeConfirm := func(idx int) {
		if idx >= len(plan.Actions) {
			return
		}
		a := plan.Actions[idx]
		if !plan.HasCheckpoint(a.ID) {
			return
		}
		fmt.Printf("\nStep %d (%s %s) needs confirmation. Press Enter to continue...", idx+1, a.Kind, a.Target)
		_, _ = reader.ReadString('\n')
		if err := container.Engine.Resume(plan.ID); err != nil {
			container.Logger.Warn("Resume failed", "planId", plan.ID, "error", err)
		}
	}

	next := 0
	maybeConfirm(next)
	for result := range results {
		status := "ok"
		if !result.Success {
			status = "FAILED: " + result.Error
		}
		fmt.Printf("  step %d/%d (attempt %d): %s\n",
			next+1, len(plan.Actions), result.Attempts, status)
		next++
		maybeConfirm(next)
	}

	summary, err := container.Engine.Summary(plan.ID)
	if err != nil {
		log.Fatalf("summary unavailable: %v", err)
	}
	fmt.Printf("\nDone: %d/%d steps succeeded (plan %s)\n",
		summary.SuccessfulCount, len(plan.Actions), summary.PlanStatus)
	if summary.FirstFailure != "" {
		fmt.Println("First failure:", summary.FirstFailure)
	}
}
