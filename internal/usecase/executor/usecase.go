package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"access-assistant/internal/application/port/output"
	"access-assistant/internal/domain/entity"
)

const (
	defaultActionTimeout  = 30 * time.Second
	defaultSettleInterval = 1500 * time.Millisecond
)

type Config struct {
	// ActionTimeout bounds a single ActionPort.Execute call. Hitting it
	// counts as a reported failure, not a fault.
	ActionTimeout time.Duration

	// SettleInterval is the pause between successfully completed actions,
	// letting asynchronous page effects resolve before the next snapshot.
	// Zero disables it (tests).
	SettleInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		ActionTimeout:  defaultActionTimeout,
		SettleInterval: defaultSettleInterval,
	}
}

// UseCase drives one plan's actions through the lifecycle state machine,
// sequentially, verifying each action's effect. Plans of different
// sessions run fully in parallel; two executions of the same plan id
// never overlap.
type UseCase struct {
	action output.ActionPort
	judge  output.OutcomeJudge
	logger output.LoggerPort
	cfg    Config

	mu   sync.Mutex
	runs map[string]*run
}

// run is the per-plan execution record. It survives the run goroutine so
// a later Execute call can replay results instead of re-invoking ports.
type run struct {
	plan *entity.Plan

	mu       sync.Mutex
	active   bool
	finished bool
	results  []entity.ExecutionResult
	next     int

	resumeCh chan struct{}
	cancelCh chan struct{}
	cancel   sync.Once
}

// New builds an executor. judge may be nil: the engine then runs
// unverified and an action's success is the port's own report.
func New(action output.ActionPort, judge output.OutcomeJudge, logger output.LoggerPort, cfg Config) *UseCase {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = defaultActionTimeout
	}
	return &UseCase{
		action: action,
		judge:  judge,
		logger: logger,
		cfg:    cfg,
		runs:   make(map[string]*run),
	}
}

// Execute starts the given plan and streams one ExecutionResult per
// attempted action, in plan order. The channel is closed when the run
// stops for any reason. A finished plan replays its stored results
// without re-invoking any port.
func (uc *UseCase) Execute(ctx context.Context, plan *entity.Plan) (<-chan entity.ExecutionResult, error) {
	uc.mu.Lock()
	r, ok := uc.runs[plan.ID]
	if !ok {
		r = &run{
			plan:     plan,
			resumeCh: make(chan struct{}, 1),
			cancelCh: make(chan struct{}),
		}
		uc.runs[plan.ID] = r
	}
	uc.mu.Unlock()

	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return nil, entity.ErrPlanBusy
	}
	if r.finished {
		stored := make([]entity.ExecutionResult, len(r.results))
		copy(stored, r.results)
		r.mu.Unlock()
		out := make(chan entity.ExecutionResult, len(stored))
		for _, res := range stored {
			out <- res
		}
		close(out)
		return out, nil
	}
	r.active = true
	r.mu.Unlock()

	out := make(chan entity.ExecutionResult)
	go uc.runLoop(ctx, r, out)
	return out, nil
}

// Cancel signals plan-scoped cancellation. Safe to call at any time,
// including for plans that never started executing. While a run is
// active the run goroutine applies the cancellation; for an idle plan
// the statuses are settled here, so a replaced plan's remaining actions
// read cancelled without waiting for an Execute that may never come.
func (uc *UseCase) Cancel(planID string) error {
	uc.mu.Lock()
	r, ok := uc.runs[planID]
	uc.mu.Unlock()
	if !ok {
		return entity.ErrPlanNotFound
	}
	r.cancel.Do(func() { close(r.cancelCh) })

	r.mu.Lock()
	idle := !r.active
	r.mu.Unlock()
	if idle {
		r.plan.CancelRemaining()
	}
	return nil
}

// Register makes a plan cancellable before its first Execute call.
func (uc *UseCase) Register(plan *entity.Plan) {
	uc.mu.Lock()
	if _, ok := uc.runs[plan.ID]; !ok {
		uc.runs[plan.ID] = &run{
			plan:     plan,
			resumeCh: make(chan struct{}, 1),
			cancelCh: make(chan struct{}),
		}
	}
	uc.mu.Unlock()
}

// Resume releases a checkpoint suspension. A resume with no pending
// checkpoint is remembered for the next one.
func (uc *UseCase) Resume(planID string) error {
	uc.mu.Lock()
	r, ok := uc.runs[planID]
	uc.mu.Unlock()
	if !ok {
		return entity.ErrPlanNotFound
	}
	select {
	case r.resumeCh <- struct{}{}:
	default:
	}
	return nil
}

// Forget drops the run record for a plan. The engine calls it after
// retiring a replaced plan and when session eviction discards one.
func (uc *UseCase) Forget(planID string) {
	uc.mu.Lock()
	delete(uc.runs, planID)
	uc.mu.Unlock()
}

// Summary reports the run without dropping unattempted trailing actions.
func (uc *UseCase) Summary(plan *entity.Plan) *entity.ExecutionSummary {
	uc.mu.Lock()
	r := uc.runs[plan.ID]
	uc.mu.Unlock()

	summary := &entity.ExecutionSummary{
		PlanID:     plan.ID,
		PlanStatus: plan.Status(),
	}
	if r != nil {
		r.mu.Lock()
		summary.ExecutedCount = len(r.results)
		for _, res := range r.results {
			if res.Success {
				summary.SuccessfulCount++
			} else if summary.FirstFailure == "" {
				summary.FirstFailure = res.Error
			}
		}
		r.mu.Unlock()
	}
	for _, a := range plan.Actions {
		outcome := entity.ActionOutcome{ActionID: a.ID, Kind: a.Kind}
		switch a.Status() {
		case entity.ActionStatusCompleted:
			outcome.Disposition = entity.DispositionCompleted
		case entity.ActionStatusFailed:
			outcome.Disposition = entity.DispositionFailed
			outcome.Error = summary.FirstFailure
		case entity.ActionStatusCancelled:
			outcome.Disposition = entity.DispositionCancelled
		default:
			outcome.Disposition = entity.DispositionNotAttempted
		}
		summary.Actions = append(summary.Actions, outcome)
	}
	return summary
}

func (uc *UseCase) runLoop(ctx context.Context, r *run, out chan<- entity.ExecutionResult) {
	defer close(out)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-r.cancelCh:
			stop()
		case <-runCtx.Done():
		}
	}()

	plan := r.plan
	plan.Start()
	uc.logger.Info("Plan execution started", "planId", plan.ID, "actions", len(plan.Actions), "from", r.next)

	for i := r.next; i < len(plan.Actions); i++ {
		action := plan.Actions[i]

		if uc.cancelled(runCtx, r) {
			uc.finishCancelled(r)
			return
		}

		if plan.HasCheckpoint(action.ID) {
			uc.logger.Info("Checkpoint reached, waiting for confirmation",
				"planId", plan.ID, "actionId", action.ID)
			select {
			case <-r.resumeCh:
			case <-runCtx.Done():
				uc.finishCancelled(r)
				return
			}
		}

		result := uc.attempt(runCtx, action)

		if uc.cancelled(runCtx, r) && !action.Status().Terminal() {
			_ = action.Cancel()
			uc.finishCancelled(r)
			return
		}

		r.mu.Lock()
		r.results = append(r.results, result)
		r.next = i + 1
		r.mu.Unlock()

		// The consumer may have gone away (client disconnect); a bare
		// send would wedge the run as permanently busy.
		select {
		case out <- result:
		case <-runCtx.Done():
			uc.finishCancelled(r)
			return
		}

		if !result.Success {
			if action.Status() == entity.ActionStatusCancelled {
				uc.finishCancelled(r)
				return
			}
			// Fail-fast: later actions assume this one succeeded. They
			// stay pending and are reported as not attempted.
			plan.SetStatus(entity.PlanStatusFailed)
			uc.finish(r)
			uc.logger.Warn("Plan execution stopped on failure",
				"planId", plan.ID, "actionId", action.ID, "error", result.Error)
			return
		}

		if uc.cfg.SettleInterval > 0 && i < len(plan.Actions)-1 {
			select {
			case <-time.After(uc.cfg.SettleInterval):
			case <-runCtx.Done():
				uc.finishCancelled(r)
				return
			}
		}
	}

	plan.SetStatus(entity.PlanStatusCompleted)
	uc.finish(r)
	uc.logger.Info("Plan execution completed", "planId", plan.ID)
}

// attempt runs one action to a terminal state, applying the retry policy:
// reported failures and rejected outcomes retry up to the ceiling, a
// fault fails the action immediately.
func (uc *UseCase) attempt(ctx context.Context, action *entity.Action) entity.ExecutionResult {
	start := time.Now()

	for {
		if err := action.Begin(); err != nil {
			return uc.failNow(action, start, err.Error())
		}

		// Pre-action snapshot fails open: without it the action is
		// simply unverifiable.
		pre := uc.trySnapshot(ctx, action.ID)

		report, err := uc.executeOnce(ctx, action)
		if err != nil {
			if ctx.Err() != nil {
				// Plan-scoped cancellation observed mid-attempt; the
				// run loop marks the action cancelled.
				return entity.ExecutionResult{
					ActionID: action.ID,
					Success:  false,
					Error:    "cancelled",
					Elapsed:  time.Since(start),
					Attempts: action.RetryCount() + 1,
				}
			}
			// Fault: the collaborator itself is unreliable, not the
			// action. No retry, bypasses the counter.
			return uc.failNow(action, start, fmt.Sprintf("port fault: %v", err))
		}

		var failReason string
		if !report.Success {
			failReason = "port reported failure"
			if report.Error != "" {
				failReason = "port reported failure: " + report.Error
			}
		} else {
			post := uc.trySnapshot(ctx, action.ID)
			verdict := uc.verify(ctx, action, pre, post)
			if verdict.Passed {
				if err := action.Complete(); err != nil {
					return uc.failNow(action, start, err.Error())
				}
				res := entity.ExecutionResult{
					ActionID: action.ID,
					Success:  true,
					Payload:  report.Payload,
					Elapsed:  time.Since(start),
					Attempts: action.RetryCount() + 1,
				}
				if post != nil {
					res.SnapshotRef = post.Ref
				}
				return res
			}
			failReason = "judge rejected outcome"
			if verdict.Reasoning != "" {
				failReason = "judge rejected outcome: " + verdict.Reasoning
			}
		}

		if action.CanRetry() {
			if err := action.Retry(); err != nil {
				return uc.failNow(action, start, err.Error())
			}
			uc.logger.Debug("Retrying action",
				"actionId", action.ID, "retry", action.RetryCount(), "reason", failReason)
			continue
		}

		if err := action.Fail(); err != nil {
			failReason = err.Error()
		}
		return entity.ExecutionResult{
			ActionID: action.ID,
			Success:  false,
			Error:    failReason,
			Elapsed:  time.Since(start),
			Attempts: action.RetryCount() + 1,
		}
	}
}

// executeOnce invokes the port under the configured timeout. A timeout
// surfaces as a reported failure so the normal retry policy applies.
func (uc *UseCase) executeOnce(ctx context.Context, action *entity.Action) (*output.ActionReport, error) {
	callCtx, cancel := context.WithTimeout(ctx, uc.cfg.ActionTimeout)
	defer cancel()

	report, err := uc.action.Execute(callCtx, action)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return &output.ActionReport{Success: false, Error: "action timed out"}, nil
		}
		return nil, err
	}
	if report == nil {
		return nil, errors.New("port returned no report")
	}
	return report, nil
}

func (uc *UseCase) trySnapshot(ctx context.Context, actionID string) *entity.Snapshot {
	snap, err := uc.action.Snapshot(ctx)
	if err != nil {
		uc.logger.Warn("Snapshot capture failed, continuing unverified",
			"actionId", actionID, "error", err)
		return nil
	}
	return snap
}

// verify consults the judge when it can be consulted; anything short of
// an explicit rejection passes.
func (uc *UseCase) verify(ctx context.Context, action *entity.Action, pre, post *entity.Snapshot) output.Verdict {
	if uc.judge == nil || pre == nil || post == nil {
		return output.Verdict{Passed: true}
	}
	verdict, err := uc.judge.Verify(ctx, pre, post, action.ExpectedOutcome)
	if err != nil {
		uc.logger.Warn("Judge unavailable, treating outcome as verified",
			"actionId", action.ID, "error", err)
		return output.Verdict{Passed: true}
	}
	return *verdict
}

func (uc *UseCase) failNow(action *entity.Action, start time.Time, reason string) entity.ExecutionResult {
	if !action.Status().Terminal() {
		_ = action.Fail()
	}
	return entity.ExecutionResult{
		ActionID: action.ID,
		Success:  false,
		Error:    reason,
		Elapsed:  time.Since(start),
		Attempts: action.RetryCount() + 1,
	}
}

func (uc *UseCase) cancelled(ctx context.Context, r *run) bool {
	select {
	case <-r.cancelCh:
		return true
	default:
		return ctx.Err() != nil
	}
}

func (uc *UseCase) finishCancelled(r *run) {
	r.plan.CancelRemaining()
	uc.finish(r)
	uc.logger.Info("Plan execution cancelled", "planId", r.plan.ID)
}

func (uc *UseCase) finish(r *run) {
	r.mu.Lock()
	r.active = false
	r.finished = true
	r.mu.Unlock()
}
