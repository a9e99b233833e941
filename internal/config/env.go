package config

import (
	"github.com/caarlos0/env/v11"
)

// ApplyEnv overlays cfg with INKSCALE_-prefixed environment variables
// (e.g. INKSCALE_MODEL, INKSCALE_WORKERS, INKSCALE_ENGINE_PATH). Variables
// that are unset leave the current values untouched.
func ApplyEnv(cfg *Config) error {
	return env.ParseWithOptions(cfg, env.Options{
		Prefix: "INKSCALE_",
	})
}
