package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Option tunes a single Load call.
type Option func(*options)

type options struct {
	files  []string
	prefix string
}

// WithEnvFiles loads the given dotenv files before parsing. Missing files are
// skipped; when no file is given ".env" is tried.
func WithEnvFiles(files ...string) Option {
	return func(o *options) { o.files = append(o.files, files...) }
}

// WithPrefix requires every variable of the struct to carry the prefix,
// e.g. "CHAT_" turns `env:"PG_CONN_URL"` into CHAT_PG_CONN_URL.
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// Load fills v from the process environment using `env` and `envDefault`
// struct tags. Variables already present in the environment win over values
// from dotenv files.
//
//	var cfg struct {
//		Addr string `env:"HTTP_ADDR" envDefault:":8080"`
//	}
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
func Load[T any](v *T, opts ...Option) error {
	if v == nil {
		return ErrNilPointer
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	files := o.files
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// godotenv never overrides variables that are already set
		if err := godotenv.Load(f); err != nil && !isNotExist(err) {
			return errors.Join(ErrLoadingEnvFile, fmt.Errorf("%s: %w", f, err))
		}
	}

	if err := env.ParseWithOptions(v, env.Options{Prefix: o.prefix}); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics on failure. Use it in main only.
func MustLoad[T any](v *T, opts ...Option) {
	if err := Load(v, opts...); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}
