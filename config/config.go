// Package config holds the settings used to format and mount images from the
// command line. Settings come from defaults, then an optional YAML file, then
// environment variables prefixed with EASYFS_, each overriding the last.

package config

import (
	"fmt"
	"io"
	"os"

	"github.com/dargueta/easyfs"
	"github.com/dargueta/easyfs/blockcache"
	"github.com/dargueta/easyfs/efs"
	"github.com/dargueta/easyfs/layout"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

const envVarPrefix = "EASYFS"

type Config struct {
	CacheCapacity     int    `envconfig:"CACHE_CAPACITY"              yaml:"cacheCapacity"`
	TotalBlocks       uint32 `envconfig:"TOTAL_BLOCKS"                yaml:"totalBlocks"`
	InodeBitmapBlocks uint32 `envconfig:"INODE_BITMAP_BLOCKS"         yaml:"inodeBitmapBlocks"`
	Preset            string `envconfig:"PRESET"                      yaml:"preset"`
	Verbose           bool   `envconfig:"VERBOSE"                     yaml:"verbose"`
}

// Default returns the settings used when nothing overrides them: the size of
// the teaching kernel's image.
func Default() Config {
	return Config{
		CacheCapacity:     blockcache.DefaultCapacity,
		TotalBlocks:       32768,
		InodeBitmapBlocks: 1,
	}
}

// Load builds a configuration from the defaults, the YAML file at `path` if
// `path` isn't empty, and then the environment. It doesn't validate the result.
func Load(path string) (Config, error) {
	c := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.UnmarshalStrict(data, &c); err != nil {
			return c, fmt.Errorf("unmarshaling config file: %w", err)
		}
	}

	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return c, fmt.Errorf("parsing environment variables: %w", err)
	}
	return c, nil
}

// Geometry gives the size of filesystem to format. A preset, if given, takes
// precedence over explicit sizes.
func (c *Config) Geometry() (totalBlocks, inodeBitmapBlocks uint32, err error) {
	if c.Preset != "" {
		preset, err := GetPreset(c.Preset)
		if err != nil {
			return 0, 0, err
		}
		return preset.TotalBlocks, preset.InodeBitmapBlocks, nil
	}
	return c.TotalBlocks, c.InodeBitmapBlocks, nil
}

func (c *Config) Validate() error {
	if c.CacheCapacity < blockcache.MinCapacity {
		return easyfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"cache capacity must be at least %d, got %d",
				blockcache.MinCapacity,
				c.CacheCapacity,
			),
		)
	}

	totalBlocks, inodeBitmapBlocks, err := c.Geometry()
	if err != nil {
		return err
	}
	_, err = layout.NewGeometry(totalBlocks, inodeBitmapBlocks)
	return err
}

// Logger returns a logger writing to `w` if verbose output is on, or one that
// discards everything otherwise.
func (c *Config) Logger(w io.Writer) logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(w)
	if !c.Verbose {
		logger.SetOutput(io.Discard)
	}
	return logger.WithField("component", "easyfs")
}

// FileSystemOptions converts the configuration into options for
// [efs.Create] and [efs.Open].
func (c *Config) FileSystemOptions(logOutput io.Writer) []efs.Option {
	return []efs.Option{
		efs.WithCacheCapacity(c.CacheCapacity),
		efs.WithLogger(c.Logger(logOutput)),
	}
}
