package optim

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/lorenz/internal/dynamo"
	"github.com/san-kum/lorenz/internal/experiment"
	"github.com/san-kum/lorenz/internal/sim"
)

type GridSearch struct {
	paramNames []string
	ranges     [][]float64

	// Maximize picks the largest metric value instead of the smallest.
	Maximize bool
	Workers  int
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

type Candidate struct {
	Params map[string]float64
	Value  float64
}

// Points enumerates the grid, last parameter varying fastest.
func (g *GridSearch) Points() []map[string]float64 {
	var out []map[string]float64
	g.enumerate(0, make(map[string]float64), &out)
	return out
}

func (g *GridSearch) enumerate(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		p := make(map[string]float64, len(current))
		for k, v := range current {
			p[k] = v
		}
		*out = append(*out, p)
		return
	}
	for _, v := range g.ranges[depth] {
		current[g.paramNames[depth]] = v
		g.enumerate(depth+1, current, out)
	}
}

// Search integrates every grid point from y0 as one ensemble and scores
// it by the named metric. Points whose metric is NaN are skipped.
func (g *GridSearch) Search(
	ctx context.Context,
	sys dynamo.System,
	integ dynamo.AdaptiveIntegrator,
	y0 dynamo.State,
	run sim.Config,
	metrics func() []sim.Metric,
	metricName string,
) (Candidate, []Candidate, error) {
	if len(g.paramNames) == 0 || len(g.paramNames) != len(g.ranges) {
		return Candidate{}, nil, fmt.Errorf("grid needs one range per parameter")
	}

	points := g.Points()
	members := make([]sim.Member, len(points))
	for i, p := range points {
		s, err := experiment.ApplyParams(sys, p)
		if err != nil {
			return Candidate{}, nil, err
		}
		members[i] = sim.Member{System: s, Y0: y0}
	}

	run.Record = false
	ens := sim.NewEnsemble(integ, run, g.Workers)
	ens.Metrics = metrics
	results, err := ens.Run(ctx, members)
	if err != nil {
		return Candidate{}, nil, err
	}

	best := Candidate{Value: math.NaN()}
	all := make([]Candidate, len(points))
	for i, res := range results {
		val, ok := res.Metrics[metricName]
		if !ok {
			return Candidate{}, nil, fmt.Errorf("unknown metric: %s", metricName)
		}
		all[i] = Candidate{Params: points[i], Value: val}
		if math.IsNaN(val) {
			continue
		}
		if math.IsNaN(best.Value) || g.better(val, best.Value) {
			best = all[i]
		}
	}
	if best.Params == nil {
		return best, all, fmt.Errorf("no grid point produced a value for %s", metricName)
	}

	return best, all, nil
}

func (g *GridSearch) better(a, b float64) bool {
	if g.Maximize {
		return a > b
	}
	return a < b
}
