// Package config loads process configuration from environment variables.
//
// It wraps github.com/joho/godotenv, which reads optional .env files, and
// github.com/caarlos0/env/v11, which parses struct tags:
//
//	type Config struct {
//	    Postgres pg.Config
//	    Redis    redis.Config
//	}
//
//	cfg, err := config.Load[Config]()
//	if errors.Is(err, config.ErrParsingConfig) {
//	    // a required variable is missing or malformed
//	}
//
// Component packages own their Config structs; the service composes them.
// WithEnvironment parses an explicit map and is meant for tests.
package config
