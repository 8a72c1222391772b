package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/lorenz/internal/dynamo"
	"github.com/san-kum/lorenz/internal/metrics"
	"github.com/san-kum/lorenz/internal/physics"
	"github.com/san-kum/lorenz/internal/sim"
)

// BoundsThreshold is the |y_i| beyond which a sample counts as escaped.
const BoundsThreshold = 1e6

type Registry struct {
	models map[string]func() dynamo.System
}

func NewRegistry() *Registry {
	r := &Registry{
		models: make(map[string]func() dynamo.System),
	}

	r.models["lorenz"] = func() dynamo.System { return physics.NewLorenz() }
	r.models["rossler"] = func() dynamo.System { return physics.NewRossler() }
	r.models["decay"] = func() dynamo.System { return physics.NewDecay() }

	return r
}

// Register adds or replaces a model factory.
func (r *Registry) Register(name string, fn func() dynamo.System) {
	r.models[name] = fn
}

func (r *Registry) GetModel(name string) (dynamo.System, error) {
	fn, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", name)
	}
	return fn(), nil
}

func (r *Registry) ListModels() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) DefaultMetrics() []sim.Metric {
	return []sim.Metric{
		metrics.NewStepSize(),
		metrics.NewRejections(),
		metrics.NewBounds(BoundsThreshold),
	}
}
