// Package configpkg provides parsing functionality for environment variables.
package configpkg

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/go-petr/pet-ledger/pkg/backoffpkg"
)

// Store kinds accepted by STORE_KIND.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// EnvDevelopment is the GO_ENV value that enables console logging.
const EnvDevelopment = "development"

// Config stores all configuration of the application.
//
// The values are read by viper from a config file or environment variables.
type Config struct {
	DBDriver             string `mapstructure:"DB_DRIVER"`
	DBSource             string `mapstructure:"DB_SOURCE"`
	MigrationURL         string `mapstructure:"MIGRATION_URL"`
	ServerAddress        string `mapstructure:"SERVER_ADDRESS"`
	Environment          string `mapstructure:"GO_ENV"`
	StoreKind            string `mapstructure:"STORE_KIND"`
	TxBaseDelayMillis    int64  `mapstructure:"TX_BASE_DELAY_MILLIS"`
	TxJitterWindowMillis int64  `mapstructure:"TX_JITTER_WINDOW_MILLIS"`
	TxMaxDelayMillis     int64  `mapstructure:"TX_MAX_DELAY_MILLIS"`
	TxMaxAttempts        int    `mapstructure:"TX_MAX_ATTEMPTS"`
}

var defaults = map[string]any{
	"DB_DRIVER":               "postgres",
	"DB_SOURCE":               "",
	"MIGRATION_URL":           "file://configs/db/migration",
	"SERVER_ADDRESS":          "0.0.0.0:8080",
	"GO_ENV":                  "production",
	"STORE_KIND":              StorePostgres,
	"TX_BASE_DELAY_MILLIS":    backoffpkg.DefaultBaseDelay.Milliseconds(),
	"TX_JITTER_WINDOW_MILLIS": backoffpkg.DefaultJitterWindow.Milliseconds(),
	"TX_MAX_DELAY_MILLIS":     backoffpkg.DefaultMaxDelay.Milliseconds(),
	"TX_MAX_ATTEMPTS":         0,
}

// Load reads configuration from the app.env file in path, if present, and
// from environment variables, which take precedence.
func Load(path string) (Config, error) {
	var c Config

	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return c, err
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}

	if err := c.Validate(); err != nil {
		return c, err
	}

	return c, nil
}

// Validate checks that the values are usable.
func (c Config) Validate() error {
	switch c.StoreKind {
	case StorePostgres:
		if c.DBSource == "" {
			return errors.New("DB_SOURCE is required for the postgres store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_KIND %q", c.StoreKind)
	}

	if c.TxBaseDelayMillis < 0 || c.TxJitterWindowMillis < 0 || c.TxMaxDelayMillis < 0 {
		return errors.New("transaction backoff values must not be negative")
	}

	return nil
}

// BackoffPolicy returns the transaction retry backoff described by the config.
func (c Config) BackoffPolicy() backoffpkg.Policy {
	return backoffpkg.New(
		time.Duration(c.TxBaseDelayMillis)*time.Millisecond,
		time.Duration(c.TxJitterWindowMillis)*time.Millisecond,
		time.Duration(c.TxMaxDelayMillis)*time.Millisecond,
	)
}
