package config

import "github.com/kelseyhightower/envconfig"

// EnvPrefix prefixes every environment variable the server reads,
// e.g. GOPHJOURNAL_DATABASE_DSN.
const EnvPrefix = "GOPHJOURNAL"

// parseEnv overlays Config with the environment. Unset variables keep the
// current value. Malformed values panic.
func parseEnv(cfg *Config) {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		panic(err)
	}
}
