// Package config loads the settings of the quarry command.
//
// Values are read, from lowest to highest precedence, from the built-in
// defaults, the quarry.yaml file, QUARRY_ environment variables and the
// command-line flags that were explicitly set. Nested keys are spelled with
// a double underscore in environment variables: QUARRY_GEN__TARGET sets
// gen.target.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/syssam/quarry/dialect"
)

// Config holds the settings of the quarry command.
type Config struct {
	// Schema is the descriptor file of the target schema.
	Schema string `koanf:"schema"`
	// Previous is the descriptor file of the schema the database is at.
	// Empty means an empty database.
	Previous         string `koanf:"previous"`
	MigrationsDir    string `koanf:"migrations_dir"`
	Dialect          string `koanf:"dialect"`
	DSN              string `koanf:"dsn"`
	AllowDestructive bool   `koanf:"allow_destructive"`
	DeferredCycles   bool   `koanf:"deferred_cycles"`
	LogFormat        string `koanf:"log_format"`
	Verbose          bool   `koanf:"verbose"`
	Output           string `koanf:"output"`
	Gen              Gen    `koanf:"gen"`
}

// Gen holds the settings of code generation.
type Gen struct {
	Target  string   `koanf:"target"`
	Models  []string `koanf:"models"`
	Workers int      `koanf:"workers"`
}

// Default configuration values.
const (
	DefaultFile          = "quarry.yaml"
	DefaultSchema        = "schema.yaml"
	DefaultMigrationsDir = "migrations"
	DefaultDialect       = dialect.Postgres
	DefaultLogFormat     = "text"
	DefaultOutput        = "table"
	DefaultGenTarget     = "models"
)

// flagKeys maps flag names to configuration keys where they differ.
var flagKeys = map[string]string{
	"from":    "previous",
	"to":      "schema",
	"dir":     "migrations_dir",
	"out":     "gen.target",
	"models":  "gen.models",
	"workers": "gen.workers",
}

// Load reads the configuration. path names the configuration file; when
// empty, quarry.yaml is read if it exists in the working directory. flags
// may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]any{
		"schema":         DefaultSchema,
		"migrations_dir": DefaultMigrationsDir,
		"dialect":        DefaultDialect,
		"log_format":     DefaultLogFormat,
		"output":         DefaultOutput,
		"gen.target":     DefaultGenTarget,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Configuration file
	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// 3. Environment: QUARRY_MIGRATIONS_DIR -> migrations_dir
	if err := k.Load(env.Provider("QUARRY_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "QUARRY_")), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags that were explicitly set
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	if _, ok := dialect.Lookup(c.Dialect); !ok {
		return fmt.Errorf("config: unknown dialect %q (known: %s)", c.Dialect, strings.Join(dialect.Names(), ", "))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: log_format must be text or json, got %q", c.LogFormat)
	}
	switch c.Output {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("config: output must be table, json or yaml, got %q", c.Output)
	}
	if c.Gen.Workers < 0 {
		return fmt.Errorf("config: gen.workers must not be negative")
	}
	return nil
}

// Profile returns the capability profile of the configured dialect.
func (c *Config) Profile() *dialect.Profile {
	p, _ := dialect.Lookup(c.Dialect)
	return p
}

// DriverDialect returns the dialect name the SQL driver is opened with.
func (c *Config) DriverDialect() string {
	return c.Profile().Name
}

// Source returns the normalized DSN of the configured database.
func (c *Config) Source() (string, error) {
	if c.DSN == "" {
		return "", fmt.Errorf("config: dsn is required")
	}
	return NormalizeDSN(c.DriverDialect(), c.DSN)
}
