package cliopt

import (
	"github.com/spf13/pflag"

	"github.com/nonibytes/mango/internal/config"
)

// GlobalOptions are parsed once at the CLI root and passed to subcommands.
// Flags only override the configuration when passed; see config.Load.
//
// NOTE: This is a separate package to avoid import cycles between the root
// command router and per-command code.
type GlobalOptions struct {
	ConfigFile string
	Format     string

	// Config is filled in by the root command before any subcommand runs.
	Config config.Config
}

func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{
		Format: "jsonl",
		Config: config.Default(),
	}
}

// BindGlobalFlags registers the persistent flags on fs. Names match the keys
// config.Load binds.
func BindGlobalFlags(fs *pflag.FlagSet, g *GlobalOptions) {
	def := g.Config
	fs.StringVar(&g.ConfigFile, "config", g.ConfigFile, "config file (default ./mango.{yaml,json,toml} if present)")
	fs.StringVar(&g.Format, "format", g.Format, "output format: jsonl|json|pretty|ids")

	fs.String("backend", def.Backend, "backend: memory|sqlite|postgres")
	fs.String("table", def.Table, "document table name")
	fs.StringSlice("index", def.Indexes, "indexed field path (repeatable or comma-separated)")

	fs.String("sqlite-path", def.SQLite.Path, "sqlite database file")
	fs.String("sqlite-driver", def.SQLite.Driver, "sqlite driver: sqlite (modernc) or sqlite3 (cgo)")

	fs.String("pg-dsn", def.Postgres.DSN, "postgres DSN")
	fs.String("pg-schema", def.Postgres.Schema, "postgres schema (created if missing)")

	fs.String("store", def.Templates.Store, "template store: none|pebble|sql")
	fs.String("pebble-dir", def.Templates.PebbleDir, "pebble directory for the template store")
	fs.Duration("cache-expiry", def.Cache.Expiry, "sliding TTL of cached templates")
	fs.Duration("persist-delay", def.Cache.PersistDelay, "debounce before templates are written")

	fs.String("log-level", def.Log.Level, "log level: debug|info|warn|error")
	fs.String("log-format", def.Log.Format, "log format: console|json")
}
