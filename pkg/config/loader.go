package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	loaded sync.Map // reflect.Type -> parsed value
	dotenv sync.Once
)

// Load fills v from the environment, using the `env` and `envDefault` struct
// tags understood by caarlos0/env. The first call also reads ./.env when it
// exists. Each type is parsed once; later calls copy the cached value, so
// every component sees the same settings for the life of the process.
// A failed parse is not cached.
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	dotenv.Do(func() { _ = godotenv.Load() })

	key := reflect.TypeFor[T]()
	if cached, ok := loaded.Load(key); ok {
		*v = cached.(T)
		return nil
	}

	fresh := *v
	if err := env.Parse(&fresh); err != nil {
		return errors.Join(ErrParsingConfig, fmt.Errorf("%s: %w", key, err))
	}
	actual, _ := loaded.LoadOrStore(key, fresh)
	*v = actual.(T)
	return nil
}

// MustLoad is Load for settings the process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(err)
	}
}

// LoadEnvFiles adds variables from the given dotenv files. Variables already
// present in the environment win. Missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return errors.Join(ErrEnvFile, err)
	}
	return nil
}
