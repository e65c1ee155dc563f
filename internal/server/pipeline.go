package server

import (
	"context"
	"log/slog"
)

// step is one stage of an orchestration sequence. run performs the step;
// compensate undoes its effects when a later step fails. Compensation is
// best-effort: a failed compensation is logged but never changes the
// already-determined outcome.
type step struct {
	// name identifies the step in logs and error responses.
	name string
	// run performs the step.
	run func(ctx context.Context) error
	// compensate undoes the step. Nil when the step has nothing to undo.
	compensate func(ctx context.Context) error
}

// runSteps executes steps in order. When a step fails, the compensations of
// every completed step run in reverse order and the failing step's name is
// returned with its error, so rollback ordering lives in the step table
// rather than in nested error handling.
func runSteps(ctx context.Context, log *slog.Logger, steps []step) (string, error) {
	for i, st := range steps {
		err := st.run(ctx)
		if err == nil {
			continue
		}
		for j := i - 1; j >= 0; j-- {
			if steps[j].compensate == nil {
				continue
			}
			if cerr := steps[j].compensate(ctx); cerr != nil {
				log.Error("compensation failed, orphaned state",
					slog.String("step", steps[j].name),
					slog.Any("error", cerr),
				)
			}
		}
		return st.name, err
	}
	return "", nil
}
