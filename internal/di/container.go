package di

import (
	"context"
	"fmt"
	"time"

	"access-assistant/internal/application/port/input"
	"access-assistant/internal/application/port/output"
	"access-assistant/internal/application/service"
	"access-assistant/internal/infrastructure/browser/rod"
	"access-assistant/internal/infrastructure/llm/langchain"
	"access-assistant/internal/infrastructure/llm/openrouter"
	"access-assistant/internal/infrastructure/logger"
	"access-assistant/internal/usecase/engine"
	"access-assistant/internal/usecase/executor"
)

type Container struct {
	Action   output.ActionPort
	Judge    output.OutcomeJudge
	Planner  output.PlanningPort
	Logger   output.LoggerPort
	Registry *service.SessionRegistry
	Executor *executor.UseCase
	Engine   input.Engine

	browser *rod.ActionAdapter
}

type Config struct {
	OpenRouterAPIKey string
	JudgeModel       string
	PlannerModel     string

	BrowserHeadless bool
	DisableJudge    bool

	ActionTimeout   time.Duration
	SettleInterval  time.Duration
	PlanningTimeout time.Duration
	SessionTTL      time.Duration
	SessionCapacity int

	LogDebug bool
}

func NewContainer(ctx context.Context, cfg Config) (*Container, error) {
	logCfg := logger.DefaultConfig()
	logCfg.Debug = cfg.LogDebug
	log, err := logger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	browserCfg := rod.DefaultConfig()
	browserCfg.Headless = cfg.BrowserHeadless
	browser, err := rod.NewActionAdapter(ctx, browserCfg)
	if err != nil {
		_ = log.Close()
		return nil, fmt.Errorf("failed to create browser: %w", err)
	}

	var judge output.OutcomeJudge
	if !cfg.DisableJudge {
		judge = openrouter.NewJudgeAdapter(
			openrouter.DefaultConfig(cfg.OpenRouterAPIKey, cfg.JudgeModel), log)
	}

	planner, err := langchain.NewPlannerAdapter(
		langchain.DefaultConfig(cfg.OpenRouterAPIKey, cfg.PlannerModel), log)
	if err != nil {
		browser.Close()
		_ = log.Close()
		return nil, fmt.Errorf("failed to create planner: %w", err)
	}

	registryCfg := service.DefaultRegistryConfig()
	if cfg.PlanningTimeout > 0 {
		registryCfg.PlanningTimeout = cfg.PlanningTimeout
	}
	if cfg.SessionTTL > 0 {
		registryCfg.SessionTTL = cfg.SessionTTL
	}
	if cfg.SessionCapacity > 0 {
		registryCfg.SessionCapacity = cfg.SessionCapacity
	}
	registry := service.NewSessionRegistry(planner, log, registryCfg)

	execCfg := executor.DefaultConfig()
	if cfg.ActionTimeout > 0 {
		execCfg.ActionTimeout = cfg.ActionTimeout
	}
	if cfg.SettleInterval > 0 {
		execCfg.SettleInterval = cfg.SettleInterval
	}
	exec := executor.New(browser, judge, log, execCfg)

	return &Container{
		Action:   browser,
		Judge:    judge,
		Planner:  planner,
		Logger:   log,
		Registry: registry,
		Executor: exec,
		Engine:   engine.New(registry, exec, log),
		browser:  browser,
	}, nil
}

func (c *Container) Close() {
	if c.browser != nil {
		c.browser.Close()
	}
	if c.Logger != nil {
		_ = c.Logger.Close()
	}
}
