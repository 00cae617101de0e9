package output

import (
	"context"
	"errors"

	"access-assistant/internal/domain/entity"
)

// ErrJudgeUnavailable signals that no verdict could be produced at all.
// The executor treats it as a pass: verification is a confidence gate,
// not a hard blocker.
var ErrJudgeUnavailable = errors.New("outcome judge unavailable")

type Verdict struct {
	Passed    bool
	Reasoning string
}

// OutcomeJudge compares before/after snapshots against an action's
// declared expected outcome.
type OutcomeJudge interface {
	Verify(ctx context.Context, pre, post *entity.Snapshot, expectedOutcome string) (*Verdict, error)
}
