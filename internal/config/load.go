package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// envPrefix namespaces the environment variables read by Load, e.g.
// INDEXER_SERVER_PORT or INDEXER_DATABASE_URL.
const envPrefix = "INDEXER"

// Load configuration from environment variables and optionally a config
// file. Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file in the working directory.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not surface env-only keys to Unmarshal; binding
	// each known key explicitly makes the two sources behave identically.
	for _, key := range []string{
		"server.port", "server.log_level",
		"database.url",
		"graph.uri", "graph.username", "graph.password",
		"twitter.base_url", "twitter.token_url", "twitter.client_id", "twitter.client_secret",
		"indexer.page_size", "indexer.following_page_size", "indexer.chunk_size",
		"indexer.worker_count", "indexer.rate_limit_fallback_minutes",
		"queue.driver", "queue.size", "queue.brokers", "queue.topic", "queue.group_id",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers defaults for everything that has a sensible one.
// Credentials deliberately have no default.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("indexer.page_size", 100)
	v.SetDefault("indexer.following_page_size", 1000)
	v.SetDefault("indexer.chunk_size", 100)
	v.SetDefault("indexer.worker_count", 2)
	v.SetDefault("indexer.rate_limit_fallback_minutes", 15)

	v.SetDefault("queue.driver", "channel")
	v.SetDefault("queue.size", 100)
	v.SetDefault("queue.group_id", "indexer-workers")
}
