package runner

import (
	"context"
	"errors"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/cryspen/mach-test/types"
)

// runParallel runs tests over a bounded worker pool. Outcomes keep registry
// order. A halting error cancels the tests still running and prevents new
// ones from starting.
func (o *orchestrator) runParallel(parent context.Context, wc WorkingContext, selected []types.TestSpec) ([]*types.TestOutcome, error) {
	log := o.log.New("component", "parallel-executor")
	log.Info("Starting parallel test execution", "totalTests", len(selected), "concurrency", o.concurrency)

	outcomes := make([]*types.TestOutcome, len(selected))
	var (
		mu       sync.Mutex
		failures []error
	)

	p := pool.New().
		WithErrors().
		WithFirstError().
		WithMaxGoroutines(o.concurrency).
		WithContext(parent).
		WithCancelOnError()

	for i, test := range selected {
		p.Go(func(ctx context.Context) error {
			if ctx.Err() != nil {
				// Halted before this test started.
				return nil
			}
			outcome, err := o.runTest(ctx, wc, test)
			if err != nil && haltedBySibling(parent, ctx, err) {
				// Leave it to markNotRun.
				log.Debug("Test halted after another test failed", "test", test.Stem)
				return nil
			}
			outcomes[i] = outcome
			if err == nil {
				return nil
			}
			if o.halts(err) {
				return err
			}
			mu.Lock()
			failures = append(failures, err)
			mu.Unlock()
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		markNotRun(outcomes, selected)
		return outcomes, err
	}
	markNotRun(outcomes, selected)
	return outcomes, suiteError(outcomes, failures)
}

// haltedBySibling reports whether err only means that the pool cancelled the
// test because another test stopped the run.
func haltedBySibling(parent, ctx context.Context, err error) bool {
	return parent.Err() == nil && ctx.Err() != nil && errors.Is(err, context.Canceled)
}
