package engine

import (
	"context"

	"access-assistant/internal/application/port/input"
	"access-assistant/internal/application/port/output"
	"access-assistant/internal/application/service"
	"access-assistant/internal/domain/entity"
	"access-assistant/internal/usecase/executor"
)

var _ input.Engine = (*UseCase)(nil)

// UseCase ties the session registry and the plan executor together
// behind the engine input port.
type UseCase struct {
	registry *service.SessionRegistry
	executor *executor.UseCase
	logger   output.LoggerPort
}

func New(registry *service.SessionRegistry, exec *executor.UseCase, logger output.LoggerPort) *UseCase {
	// Session eviction must drop the evicted plans' run records too, or
	// every evicted session would leave a run struct behind forever.
	registry.OnPlanDiscard(exec.Forget)
	return &UseCase{
		registry: registry,
		executor: exec,
		logger:   logger,
	}
}

func (uc *UseCase) SubmitIntent(ctx context.Context, sessionID, userID, intent string, page output.PageContext) (*entity.Plan, error) {
	old, _ := uc.registry.ActivePlan(sessionID)

	plan, err := uc.registry.SubmitIntent(ctx, sessionID, userID, intent, page)
	if err != nil {
		return nil, err
	}
	uc.executor.Register(plan)
	if old != nil && old.ID != plan.ID {
		uc.retire(old.ID)
	}
	return plan, nil
}

func (uc *UseCase) SubmitClarification(ctx context.Context, sessionID, clarification string) (*entity.Plan, error) {
	old, _ := uc.registry.ActivePlan(sessionID)

	plan, err := uc.registry.SubmitClarification(ctx, sessionID, clarification)
	if err != nil {
		return nil, err
	}

	if old != nil && old.ID != plan.ID {
		uc.executor.Register(plan)
		uc.retire(old.ID)
	}
	return plan, nil
}

// retire winds down a replaced plan. Cancel routes through the run's
// cancel channel, so a run goroutine still executing the old plan does
// the cancelling itself; only then is the run record dropped, or it
// would replay stale results for a plan id the registry no longer knows.
func (uc *UseCase) retire(planID string) {
	if err := uc.executor.Cancel(planID); err != nil {
		uc.logger.Debug("Replaced plan had no run record", "planId", planID)
	}
	uc.executor.Forget(planID)
}

func (uc *UseCase) Execute(ctx context.Context, planID string) (<-chan entity.ExecutionResult, error) {
	plan, err := uc.registry.PlanByID(planID)
	if err != nil {
		return nil, err
	}
	return uc.executor.Execute(ctx, plan)
}

func (uc *UseCase) Resume(planID string) error {
	if _, err := uc.registry.PlanByID(planID); err != nil {
		return err
	}
	return uc.executor.Resume(planID)
}

func (uc *UseCase) Cancel(planID string) error {
	if _, err := uc.registry.PlanByID(planID); err != nil {
		return err
	}
	return uc.executor.Cancel(planID)
}

func (uc *UseCase) Summary(planID string) (*entity.ExecutionSummary, error) {
	plan, err := uc.registry.PlanByID(planID)
	if err != nil {
		return nil, err
	}
	return uc.executor.Summary(plan), nil
}
