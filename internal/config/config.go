// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/mia-platform/logrelay/internal/auth"
	"github.com/mia-platform/logrelay/internal/destination"
	"github.com/mia-platform/logrelay/internal/destination/evaluation"
	"github.com/mia-platform/logrelay/internal/logentry"
	"github.com/mia-platform/logrelay/internal/notify"
	"github.com/mia-platform/logrelay/internal/store"
	"github.com/mia-platform/logrelay/internal/store/azblob"
	"github.com/mia-platform/logrelay/internal/store/file"
	"github.com/mia-platform/logrelay/internal/store/memory"
	"github.com/mia-platform/logrelay/internal/store/redis"
)

const (
	StoreFile   = "file"
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreAzblob = "azblob"
)

var (
	// ErrEnvVariablesNotValid wraps every error found while reading the environment.
	ErrEnvVariablesNotValid = errors.New("environment variables not valid")
	// ErrMissingEnvVariable reports missing mandatory environment variables.
	ErrMissingEnvVariable = errors.New("missing environment variable")
	// ErrInvalidEnvVariable reports malformed environment variable values.
	ErrInvalidEnvVariable = errors.New("invalid environment value")

	storeBackends = []string{StoreFile, StoreMemory, StoreRedis, StoreAzblob}
)

// Config holds every setting read from the environment.
type Config struct {
	BaseURL      string `env:"LOGRELAY_BASE_URL" envDefault:"http://38.244.81.44/evaluation-service"`
	Token        string `env:"LOGRELAY_TOKEN"`
	ClientID     string `env:"LOGRELAY_CLIENT_ID"`
	ClientSecret string `env:"LOGRELAY_CLIENT_SECRET"`
	DefaultStack string `env:"LOGRELAY_DEFAULT_STACK" envDefault:"frontend"`

	DeliveryTimeout time.Duration `env:"LOGRELAY_DELIVERY_TIMEOUT" envDefault:"5s"`
	AuthTimeout     time.Duration `env:"LOGRELAY_AUTH_TIMEOUT" envDefault:"10s"`
	FailedLogLimit  int           `env:"LOGRELAY_FAILED_LOG_LIMIT" envDefault:"1000"`
	FlushRate       float64       `env:"LOGRELAY_FLUSH_RATE" envDefault:"0"`
	RetryInterval   time.Duration `env:"LOGRELAY_RETRY_INTERVAL" envDefault:"0s"`

	StoreBackend string `env:"LOGRELAY_STORE" envDefault:"file"`
	StorePath    string `env:"LOGRELAY_STORE_PATH"`

	RedisURL    string `env:"LOGRELAY_REDIS_URL"`
	RedisPrefix string `env:"LOGRELAY_REDIS_PREFIX" envDefault:"logrelay:"`

	AzblobConnectionString string `env:"LOGRELAY_AZBLOB_CONNECTION_STRING"`
	AzblobAccountName      string `env:"LOGRELAY_AZBLOB_ACCOUNT_NAME"`
	AzblobContainer        string `env:"LOGRELAY_AZBLOB_CONTAINER"`

	NATSURL     string `env:"LOGRELAY_NATS_URL"`
	NATSSubject string `env:"LOGRELAY_NATS_SUBJECT" envDefault:"logrelay.delivery.failed"`
}

// Load reads and validates the configuration from the environment.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, handleError(err)
	}

	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	if err := cfg.Validate(); err != nil {
		return Config{}, handleError(err)
	}
	return cfg, nil
}

// Validate checks the configured values, reporting the first problem found.
func (c Config) Validate() error {
	if err := validateURL("LOGRELAY_BASE_URL", c.BaseURL); err != nil {
		return err
	}

	if err := c.AuthOptions().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEnvVariable, err)
	}

	if _, err := logentry.ParseStack(c.DefaultStack); err != nil {
		return fmt.Errorf("%w: LOGRELAY_DEFAULT_STACK: %w", ErrInvalidEnvVariable, err)
	}

	switch {
	case c.DeliveryTimeout <= 0:
		return fmt.Errorf("%w: %s", ErrInvalidEnvVariable, "LOGRELAY_DELIVERY_TIMEOUT must be positive")
	case c.AuthTimeout <= 0:
		return fmt.Errorf("%w: %s", ErrInvalidEnvVariable, "LOGRELAY_AUTH_TIMEOUT must be positive")
	case c.FailedLogLimit < 0:
		return fmt.Errorf("%w: %s", ErrInvalidEnvVariable, "LOGRELAY_FAILED_LOG_LIMIT cannot be negative")
	case c.FlushRate < 0:
		return fmt.Errorf("%w: %s", ErrInvalidEnvVariable, "LOGRELAY_FLUSH_RATE cannot be negative")
	case c.RetryInterval < 0:
		return fmt.Errorf("%w: %s", ErrInvalidEnvVariable, "LOGRELAY_RETRY_INTERVAL cannot be negative")
	}

	switch c.StoreBackend {
	case StoreFile, StoreMemory:
	case StoreRedis:
		if len(c.RedisURL) == 0 {
			return fmt.Errorf("%w: %s", ErrMissingEnvVariable, "LOGRELAY_REDIS_URL")
		}
	case StoreAzblob:
		switch {
		case len(c.AzblobConnectionString) == 0 && len(c.AzblobAccountName) == 0:
			return fmt.Errorf("%w: %s", ErrInvalidEnvVariable, "one of LOGRELAY_AZBLOB_CONNECTION_STRING or LOGRELAY_AZBLOB_ACCOUNT_NAME must be present")
		case len(c.AzblobContainer) == 0:
			return fmt.Errorf("%w: %s", ErrMissingEnvVariable, "LOGRELAY_AZBLOB_CONTAINER")
		}
	default:
		return fmt.Errorf("%w: LOGRELAY_STORE must be one of %s, got %q", ErrInvalidEnvVariable, strings.Join(storeBackends, ", "), c.StoreBackend)
	}

	return nil
}

func validateURL(name, value string) error {
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%w: %s is not a valid url", ErrInvalidEnvVariable, name)
	}
	return nil
}

// Stack returns the default stack of the convenience helpers.
func (c Config) Stack() logentry.Stack {
	stack, err := logentry.ParseStack(c.DefaultStack)
	if err != nil {
		return logentry.StackFrontend
	}
	return stack
}

// AuthOptions returns the token sources configured in the environment.
func (c Config) AuthOptions() auth.Options {
	return auth.Options{
		Token:        c.Token,
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
	}
}

// OpenStore returns the durable store selected by LOGRELAY_STORE.
func (c Config) OpenStore(ctx context.Context) (store.Store, error) {
	switch c.StoreBackend {
	case StoreMemory:
		return memory.New(), nil
	case StoreRedis:
		return redis.New(ctx, c.RedisURL, c.RedisPrefix)
	case StoreAzblob:
		return azblob.New(ctx, azblob.Config{
			ConnectionString: c.AzblobConnectionString,
			AccountName:      c.AzblobAccountName,
			Container:        c.AzblobContainer,
		})
	default:
		path := c.StorePath
		if path == "" {
			var err error
			if path, err = file.DefaultPath(); err != nil {
				return nil, err
			}
		}
		return file.New(path)
	}
}

// Sender returns the destination delivering logs to the evaluation server.
func (c Config) Sender() (destination.Sender, error) {
	return evaluation.NewDestination(c.BaseURL, c.DeliveryTimeout)
}

// AuthClient returns the registration and authentication client, caching in cache.
func (c Config) AuthClient(cache store.Store) (*auth.Client, error) {
	return auth.NewClient(c.BaseURL, c.AuthTimeout, cache)
}

// Notifier returns the notifier for failed deliveries and a function releasing it.
// Without LOGRELAY_NATS_URL failures are only logged.
func (c Config) Notifier(ctx context.Context) (notify.Notifier, func() error, error) {
	if c.NATSURL == "" {
		return notify.Nop{}, func() error { return nil }, nil
	}

	publisher, err := notify.NewNATSPublisher(ctx, c.NATSURL, c.NATSSubject)
	if err != nil {
		return nil, nil, err
	}
	return publisher, publisher.Close, nil
}

// handleError always wraps err with ErrEnvVariablesNotValid, dropping the
// aggregate layer added by the env parser.
func handleError(err error) error {
	var aggregate env.AggregateError
	if errors.As(err, &aggregate) && len(aggregate.Errors) > 0 {
		err = errors.Join(aggregate.Errors...)
	}

	return fmt.Errorf("%w: %w", ErrEnvVariablesNotValid, err)
}
