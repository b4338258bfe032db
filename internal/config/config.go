// Package config loads the application configuration from a config file
// and environment variables via viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Source holds the per-source settings.
type Source struct {
	Enabled bool
	BaseURL string
	APIKey  string
	Rate    float64
	Burst   int
	Timeout time.Duration
}

// Config is the typed application configuration.
type Config struct {
	Server struct {
		Addr string
	}

	Enrich struct {
		Deadline       time.Duration
		RequiredFields []string
		MaxDeferrals   int
	}

	Cache struct {
		DBFile      string
		TTL         time.Duration
		Negative    bool
		NegativeTTL time.Duration
	}

	Sink struct {
		DBFile string
	}

	Breaker struct {
		Threshold int
		Cooldown  time.Duration
	}

	Sources map[string]Source
}

func setDefaults() {
	viper.SetDefault("server.addr", ":8080")

	viper.SetDefault("enrich.deadline", "10s")
	viper.SetDefault("enrich.required_fields", []string{"title", "author", "isbn"})
	viper.SetDefault("enrich.max_deferrals", 2)

	viper.SetDefault("cache.dbfile", "bookdex-cache.db")
	viper.SetDefault("cache.ttl", "720h")
	viper.SetDefault("cache.negative", false)
	viper.SetDefault("cache.negative_ttl", "168h")

	viper.SetDefault("sink.dbfile", "bookdex.db")

	viper.SetDefault("breaker.threshold", 5)
	viper.SetDefault("breaker.cooldown", "60s")

	viper.SetDefault("sources.openlibrary.enabled", true)
	viper.SetDefault("sources.openlibrary.rate", 1.0)
	viper.SetDefault("sources.openlibrary.burst", 3)
	viper.SetDefault("sources.openlibrary.timeout", "10s")

	viper.SetDefault("sources.googlebooks.enabled", true)
	viper.SetDefault("sources.googlebooks.rate", 1.0)
	viper.SetDefault("sources.googlebooks.burst", 3)
	viper.SetDefault("sources.googlebooks.timeout", "10s")

	viper.SetDefault("sources.isbndb.enabled", false)
	viper.SetDefault("sources.isbndb.rate", 1.0)
	viper.SetDefault("sources.isbndb.burst", 1)
	viper.SetDefault("sources.isbndb.timeout", "10s")

	viper.SetDefault("sources.scrape.enabled", false)
	viper.SetDefault("sources.scrape.rate", 0.5)
	viper.SetDefault("sources.scrape.burst", 1)
	viper.SetDefault("sources.scrape.timeout", "15s")
}

// Load reads the configuration. A missing config file is fine; defaults
// and environment variables still apply. Environment variables use the
// BOOKDEX prefix with underscores, e.g. BOOKDEX_SOURCES_ISBNDB_APIKEY.
func Load(file string) (*Config, error) {
	setDefaults()

	if file != "" {
		viper.SetConfigFile(file)
	} else {
		viper.SetConfigName("bookdex")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/bookdex")
	}

	viper.SetEnvPrefix("bookdex")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{Sources: make(map[string]Source)}
	cfg.Server.Addr = viper.GetString("server.addr")

	cfg.Enrich.Deadline = viper.GetDuration("enrich.deadline")
	cfg.Enrich.RequiredFields = viper.GetStringSlice("enrich.required_fields")
	cfg.Enrich.MaxDeferrals = viper.GetInt("enrich.max_deferrals")

	cfg.Cache.DBFile = viper.GetString("cache.dbfile")
	cfg.Cache.TTL = viper.GetDuration("cache.ttl")
	cfg.Cache.Negative = viper.GetBool("cache.negative")
	cfg.Cache.NegativeTTL = viper.GetDuration("cache.negative_ttl")

	cfg.Sink.DBFile = viper.GetString("sink.dbfile")

	cfg.Breaker.Threshold = viper.GetInt("breaker.threshold")
	cfg.Breaker.Cooldown = viper.GetDuration("breaker.cooldown")

	for _, name := range []string{"openlibrary", "googlebooks", "isbndb", "scrape"} {
		prefix := "sources." + name + "."
		cfg.Sources[name] = Source{
			Enabled: viper.GetBool(prefix + "enabled"),
			BaseURL: viper.GetString(prefix + "base_url"),
			APIKey:  viper.GetString(prefix + "apikey"),
			Rate:    viper.GetFloat64(prefix + "rate"),
			Burst:   viper.GetInt(prefix + "burst"),
			Timeout: viper.GetDuration(prefix + "timeout"),
		}
	}

	return cfg, nil
}
