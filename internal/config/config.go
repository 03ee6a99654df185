// Package config loads CLI configuration from flags, MANGO_* environment
// variables and an optional config file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nonibytes/mango/mango/cache"
	"github.com/nonibytes/mango/mango/storage/sqlite"
)

// EnvPrefix is prepended to every environment variable, e.g.
// MANGO_SQLITE_PATH sets sqlite.path.
const EnvPrefix = "MANGO"

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"

	StoreNone   = "none"
	StorePebble = "pebble"
	StoreSQL    = "sql"
)

type Config struct {
	Backend   string          `mapstructure:"backend"`
	Table     string          `mapstructure:"table"`
	Indexes   []string        `mapstructure:"indexes"`
	SQLite    SQLiteConfig    `mapstructure:"sqlite"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Templates TemplatesConfig `mapstructure:"templates"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Log       LogConfig       `mapstructure:"log"`
}

type SQLiteConfig struct {
	Path   string `mapstructure:"path"`
	Driver string `mapstructure:"driver"`
}

type PostgresConfig struct {
	DSN    string `mapstructure:"dsn"`
	Schema string `mapstructure:"schema"`
}

// TemplatesConfig selects where compiled templates persist between runs.
type TemplatesConfig struct {
	Store     string `mapstructure:"store"`
	PebbleDir string `mapstructure:"pebble_dir"`
}

type CacheConfig struct {
	Expiry       time.Duration `mapstructure:"expiry"`
	PersistDelay time.Duration `mapstructure:"persist_delay"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Backend: BackendSQLite,
		Table:   "documents",
		SQLite:  SQLiteConfig{Path: "mango.db", Driver: sqlite.DriverModernc},
		Templates: TemplatesConfig{
			Store:     StoreSQL,
			PebbleDir: ".mango-templates",
		},
		Cache: CacheConfig{
			Expiry:       cache.DefaultExpiry,
			PersistDelay: cache.DefaultPersistDelay,
		},
		Log: LogConfig{Level: "warn", Format: "console"},
	}
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"backend":       "backend",
	"table":         "table",
	"index":         "indexes",
	"sqlite-path":   "sqlite.path",
	"sqlite-driver": "sqlite.driver",
	"pg-dsn":        "postgres.dsn",
	"pg-schema":     "postgres.schema",
	"store":         "templates.store",
	"pebble-dir":    "templates.pebble_dir",
	"cache-expiry":  "cache.expiry",
	"persist-delay": "cache.persist_delay",
	"log-level":     "log.level",
	"log-format":    "log.format",
}

// Options tells Load where to look.
type Options struct {
	// File is an explicit config file. Empty searches for mango.{yaml,json,toml}
	// in the working directory and ignores its absence.
	File string
	// Flags, when set, override every other source for the flags the user
	// actually passed.
	Flags *pflag.FlagSet
}

// Load resolves the configuration and validates it.
func Load(opts Options) (Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("backend", def.Backend)
	v.SetDefault("table", def.Table)
	v.SetDefault("indexes", []string{})
	v.SetDefault("sqlite.path", def.SQLite.Path)
	v.SetDefault("sqlite.driver", def.SQLite.Driver)
	v.SetDefault("postgres.dsn", def.Postgres.DSN)
	v.SetDefault("postgres.schema", def.Postgres.Schema)
	v.SetDefault("templates.store", def.Templates.Store)
	v.SetDefault("templates.pebble_dir", def.Templates.PebbleDir)
	v.SetDefault("cache.expiry", def.Cache.Expiry)
	v.SetDefault("cache.persist_delay", def.Cache.PersistDelay)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", opts.File, err)
		}
	} else {
		v.SetConfigName("mango")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Indexes = splitList(cfg.Indexes)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// splitList accepts both repeated values and comma-separated ones.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return errors.New("sqlite backend requires sqlite.path")
		}
		if c.SQLite.Driver != sqlite.DriverModernc && c.SQLite.Driver != sqlite.DriverMattn {
			return fmt.Errorf("unknown sqlite driver %q (want %s|%s)", c.SQLite.Driver, sqlite.DriverModernc, sqlite.DriverMattn)
		}
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return errors.New("postgres backend requires postgres.dsn")
		}
	default:
		return fmt.Errorf("unknown backend %q (want memory|sqlite|postgres)", c.Backend)
	}

	switch c.Templates.Store {
	case StoreNone:
	case StorePebble:
		if c.Templates.PebbleDir == "" {
			return errors.New("pebble template store requires templates.pebble_dir")
		}
	case StoreSQL:
		if c.Backend == BackendMemory {
			return errors.New("sql template store requires an sqlite or postgres backend")
		}
	default:
		return fmt.Errorf("unknown template store %q (want none|pebble|sql)", c.Templates.Store)
	}

	if c.Cache.Expiry <= 0 {
		return errors.New("cache.expiry must be positive")
	}
	if c.Cache.PersistDelay < 0 {
		return errors.New("cache.persist_delay must not be negative")
	}
	return nil
}
