package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// paramOverrides is parsed separately so LORENZ_PARAMS merges into the
// file's params instead of replacing them.
type paramOverrides struct {
	Params map[string]float64 `env:"LORENZ_PARAMS"`
}

// ApplyEnv overlays LORENZ_* environment variables onto cfg. Unset
// variables leave fields alone. LORENZ_PARAMS takes "name:value,..." pairs.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	var po paramOverrides
	if err := env.Parse(&po); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if len(po.Params) > 0 && cfg.Params == nil {
		cfg.Params = make(map[string]float64, len(po.Params))
	}
	for k, v := range po.Params {
		cfg.Params[k] = v
	}
	return nil
}
