package sim

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/lorenz/internal/dynamo"
)

// Member is one trajectory of an ensemble. Members may carry different
// systems, e.g. the same model swept over a parameter.
type Member struct {
	System dynamo.System
	Y0     dynamo.State
}

// Ensemble runs independent trajectories concurrently. The integrator is
// shared between members, so it must be stateless.
type Ensemble struct {
	integ   dynamo.AdaptiveIntegrator
	cfg     Config
	workers int

	// Metrics, if set, builds a fresh metric set for each member.
	Metrics func() []Metric
	// KeepFailed records a member whose integration fails in its Result
	// (Stopped == StopFailed, Err set) instead of cancelling the rest.
	KeepFailed bool
}

func NewEnsemble(integ dynamo.AdaptiveIntegrator, cfg Config, workers int) *Ensemble {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Ensemble{integ: integ, cfg: cfg, workers: workers}
}

// Run integrates every member and returns results in member order. The
// first failure cancels the members still running, unless KeepFailed is
// set and the failure happened while stepping.
func (e *Ensemble) Run(ctx context.Context, members []Member) ([]*Result, error) {
	if e.cfg.MaxSteps == 0 && e.cfg.Duration == 0 {
		return nil, fmt.Errorf("sim: ensemble needs MaxSteps or Duration")
	}
	results := make([]*Result, len(members))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, m := range members {
		g.Go(func() error {
			d, err := New(m.System, e.integ, e.cfg)
			if err != nil {
				return fmt.Errorf("member %d: %w", i, err)
			}
			if e.Metrics != nil {
				for _, metric := range e.Metrics() {
					d.AddMetric(metric)
				}
			}
			if err := d.Reset(m.Y0); err != nil {
				return fmt.Errorf("member %d: %w", i, err)
			}
			res, err := d.Run(ctx, nil)
			results[i] = res
			if err != nil && e.KeepFailed && res.Stopped == StopFailed {
				res.Err = err
				return nil
			}
			if err != nil {
				return fmt.Errorf("member %d: %w", i, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
