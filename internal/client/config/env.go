package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable name of Config.
const EnvPrefix = "GOPHSCAN_"

// parseEnv overlays cfg with the GOPHSCAN_* variables of environ. Unset
// variables leave the current values alone.
func parseEnv(cfg *Config, environ map[string]string) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix, Environment: environ}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func readDotEnv(path string) (map[string]string, error) {
	return godotenv.Read(path)
}
