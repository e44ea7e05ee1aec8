// Package config loads the apptables CLI configuration from a TOML file.
//
//	backend = "dynamodb"
//	table = "my-app"
//	region = "eu-west-1"
//	page_size = 50
//	cursor_ttl = "1h"
//	convert_limit = 100
//
//	[[tables]]
//	name = "employees"
//	columns = [
//	  { name = "name", type = "string" },
//	  { name = "manager", type = "link_single", target = "employees" },
//	]
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/nisimpson/apptables"
	"github.com/nisimpson/apptables/tablekit"
)

const (
	BackendMemory   = "memory"
	BackendDynamoDB = "dynamodb"
)

// Duration is a time.Duration written as a string, "90s" or "24h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Options is the CLI configuration.
type Options struct {
	Backend  string `toml:"backend"`
	Table    string `toml:"table"`
	Index    string `toml:"index"`
	Region   string `toml:"region"`
	Endpoint string `toml:"endpoint"`

	PageSize  int      `toml:"page_size"`
	CursorTTL Duration `toml:"cursor_ttl"`

	// Seed is a JSON seed document loaded into the memory backend at startup.
	Seed string `toml:"seed"`

	ConvertSearch *bool `toml:"convert_search"`
	ConvertLimit  int   `toml:"convert_limit"`

	Tables []apptables.Schema `toml:"tables"`
}

// Default returns the configuration used when no file is given.
func Default() *Options {
	return &Options{
		Backend:   BackendMemory,
		Index:     "ref-index",
		PageSize:  apptables.DefaultPageSize,
		CursorTTL: Duration{apptables.DefaultCursorTTL},
	}
}

// Load reads the file at path over the defaults and applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Options, error) {
	opts := Default()
	if path != "" {
		path = filepath.Clean(path)
		md, err := toml.DecodeFile(path, opts)
		if err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config %s: unknown keys %v", path, undecoded)
		}
		if opts.Seed != "" && !filepath.IsAbs(opts.Seed) {
			opts.Seed = filepath.Join(filepath.Dir(path), opts.Seed)
		}
	}

	overrideWithEnv(opts)

	if err := opts.validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func overrideWithEnv(opts *Options) {
	if endpoint, ok := os.LookupEnv("APPTABLES_ENDPOINT"); ok {
		opts.Endpoint = endpoint
	}
	if table, ok := os.LookupEnv("APPTABLES_TABLE"); ok {
		opts.Table = table
	}
	if region, ok := os.LookupEnv("AWS_REGION"); ok {
		opts.Region = region
	}
}

func (o *Options) validate() error {
	switch o.Backend {
	case BackendMemory:
	case BackendDynamoDB:
		if o.Table == "" {
			return fmt.Errorf("backend %s needs a table name", o.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q", o.Backend)
	}
	if o.PageSize < 0 || o.ConvertLimit < 0 {
		return fmt.Errorf("page_size and convert_limit must not be negative")
	}
	return nil
}

// TableOptions returns the apptables options the configuration sets.
func (o *Options) TableOptions() func(*apptables.Options) {
	return func(opts *apptables.Options) {
		if o.PageSize > 0 {
			opts.PageSize = o.PageSize
		}
		if o.CursorTTL.Duration > 0 {
			opts.CursorTTL = o.CursorTTL.Duration
		}
	}
}

// WrapperOptions returns the tablekit options the configuration sets.
func (o *Options) WrapperOptions() []func(*tablekit.Options) {
	var opts []func(*tablekit.Options)
	if o.ConvertSearch != nil {
		opts = append(opts, tablekit.WithConvertSearch(*o.ConvertSearch))
	}
	if o.ConvertLimit > 0 {
		opts = append(opts, tablekit.WithConvertLimit(o.ConvertLimit))
	}
	return opts
}
