// Package config handles bceval.toml run configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("bceval.config")

// FileName is the name of the configuration file looked up by FindAndLoad.
const FileName = "bceval.toml"

// Resolver levels.
const (
	LevelVarOnly = "varOnly"
	LevelFull    = "full"
)

// Config is a bceval.toml run configuration.
type Config struct {
	Resolver Resolver `toml:"resolver"`
	Eval     Eval     `toml:"eval"`
	Crawler  Crawler  `toml:"crawler"`
	Log      Log      `toml:"log"`

	// Path is the file the configuration was read from (set at load time).
	Path string `toml:"-"`
}

// Resolver configures the placeholder rendering of unresolved values.
type Resolver struct {
	Enabled  bool   `toml:"enabled"`
	Level    string `toml:"level"`
	FailFast bool   `toml:"fail_fast"`
}

// Eval bounds the evaluation.
type Eval struct {
	MaxCallDepth int `toml:"max_call_depth"`
	MaxVariants  int `toml:"max_variants"`
}

// Crawler configures the call-site search.
type Crawler struct {
	Enabled bool `toml:"enabled"`
	Workers int  `toml:"workers"` // 0 means GOMAXPROCS
}

// Log configures logging.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Resolver: Resolver{Enabled: true, Level: LevelVarOnly},
		Eval:     Eval{MaxCallDepth: 16, MaxVariants: 256},
		Crawler:  Crawler{Enabled: true},
	}
}

// Parse decodes a configuration over the defaults.
func Parse(data []byte) (*Config, error) {
	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, err
	}
	if keys := md.Undecoded(); len(keys) > 0 {
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = k.String()
		}
		log.Warningf("unknown configuration keys: %s", strings.Join(names, ", "))
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	c.Path = path
	return c, nil
}

// FindAndLoad walks up from startDir to find a bceval.toml file and loads
// it. The defaults are returned when no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	switch c.Resolver.Level {
	case LevelVarOnly, LevelFull:
	default:
		errs = append(errs, fmt.Errorf("resolver.level must be %q or %q, got %q", LevelVarOnly, LevelFull, c.Resolver.Level))
	}
	if c.Eval.MaxCallDepth <= 0 {
		errs = append(errs, fmt.Errorf("eval.max_call_depth must be positive, got %d", c.Eval.MaxCallDepth))
	}
	if c.Eval.MaxVariants <= 0 {
		errs = append(errs, fmt.Errorf("eval.max_variants must be positive, got %d", c.Eval.MaxVariants))
	}
	if c.Crawler.Workers < 0 {
		errs = append(errs, fmt.Errorf("crawler.workers must not be negative, got %d", c.Crawler.Workers))
	}
	if c.Log.Verbosity < 0 {
		errs = append(errs, fmt.Errorf("log.verbosity must not be negative, got %d", c.Log.Verbosity))
	}
	return errors.Join(errs...)
}
