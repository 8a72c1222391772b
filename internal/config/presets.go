package config

import "sort"

var Presets = map[string]map[string]*Config{
	"lorenz": {
		"classic": {
			Model: "lorenz", Params: map[string]float64{"sigma": 10, "r": 25, "b": 8.0 / 3.0},
			InitState: []float64{0.6, 0.65, 0.7}, Steps: 5000,
		},
		"chaotic": {
			Model: "lorenz", Params: map[string]float64{"r": 28},
			InitState: []float64{1, 1, 1}, Steps: 10000,
		},
		"periodic": {
			Model: "lorenz", Params: map[string]float64{"r": 160},
			InitState: []float64{0.6, 0.65, 0.7}, Steps: 10000,
		},
		"quiet": {
			Model: "lorenz", Params: map[string]float64{"r": 0.5},
			InitState: []float64{5, 5, 5}, Steps: 2000,
		},
		"loose": {
			Model: "lorenz", Tolerance: 1e-3, Steps: 5000,
			InitState: []float64{0.6, 0.65, 0.7},
		},
	},
	"rossler": {
		"spiral": {
			Model: "rossler", InitState: []float64{1, 1, 0}, Steps: 10000,
		},
		"funnel": {
			Model: "rossler", Params: map[string]float64{"a": 0.3, "c": 8.5},
			InitState: []float64{1, 1, 0}, Steps: 10000,
		},
	},
	"decay": {
		"unit": {
			Model: "decay", Params: map[string]float64{"k": 1},
			InitState: []float64{1}, Duration: 5,
		},
	},
}

// GetPreset returns a full config for a named preset, with unset fields
// taken from the defaults, or nil if it does not exist.
func GetPreset(model, name string) *Config {
	presets, ok := Presets[model]
	if !ok {
		return nil
	}
	p, ok := presets[name]
	if !ok {
		return nil
	}

	cfg := DefaultConfig()
	cfg.Model = p.Model
	if p.Params != nil {
		cfg.Params = make(map[string]float64, len(p.Params))
		for k, v := range p.Params {
			cfg.Params[k] = v
		}
	}
	if p.InitState != nil {
		cfg.InitState = append([]float64(nil), p.InitState...)
	}
	if p.Tolerance > 0 {
		cfg.Tolerance = p.Tolerance
	}
	if p.InitialStep != 0 {
		cfg.InitialStep = p.InitialStep
	}
	if p.Steps > 0 || p.Duration > 0 {
		cfg.Steps = p.Steps
		cfg.Duration = p.Duration
	}
	return cfg
}

func ListPresets(model string) []string {
	presets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ListModels() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
