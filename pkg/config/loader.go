package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var defaultEnvLoaded sync.Once

// Option configures Load.
type Option func(*loadOptions)

type loadOptions struct {
	files       []string
	prefix      string
	environment map[string]string
}

// WithFiles loads the given .env files instead of the default ./.env.
// Variables already present in the process environment win.
func WithFiles(files ...string) Option {
	return func(o *loadOptions) {
		o.files = append(o.files, files...)
	}
}

// WithPrefix requires every variable to carry prefix, e.g. "PUSHD_".
func WithPrefix(prefix string) Option {
	return func(o *loadOptions) {
		o.prefix = prefix
	}
}

// WithEnvironment parses vars instead of the process environment.
// No .env file is read.
func WithEnvironment(vars map[string]string) Option {
	return func(o *loadOptions) {
		o.environment = vars
	}
}

// Load parses the environment into a new T using env struct tags.
//
//	type Config struct {
//	    Postgres pg.Config
//	    VAPID    vapid.Config
//	}
//	cfg, err := config.Load[Config]()
func Load[T any](opts ...Option) (T, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	var v T
	if o.environment == nil {
		if err := loadFiles(o.files); err != nil {
			return v, err
		}
	}

	if err := env.ParseWithOptions(&v, env.Options{
		Prefix:      o.prefix,
		Environment: o.environment,
	}); err != nil {
		return v, errors.Join(ErrParsingConfig, err)
	}
	return v, nil
}

// MustLoad is Load that panics on failure, for use in main.
func MustLoad[T any](opts ...Option) T {
	v, err := Load[T](opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
	return v
}

func loadFiles(files []string) error {
	if len(files) == 0 {
		// A missing default .env is fine.
		defaultEnvLoaded.Do(func() { _ = godotenv.Load() })
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return errors.Join(ErrLoadingEnvFile, err)
	}
	return nil
}
