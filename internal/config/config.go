package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/frederic-klein/yacr/internal/resolver"
)

// EnvPrefix prefixes environment variables overriding configuration keys.
const EnvPrefix = "YACR"

// Config is the yacr configuration.
type Config struct {
	CacheDir        string            `mapstructure:"cache_dir"`
	StoreDir        string            `mapstructure:"store_dir"`
	Workers         int               `mapstructure:"workers"`
	Mirror          string            `mapstructure:"mirror"` // empty disables the remote index
	RecipesDir      string            `mapstructure:"recipes_dir"`
	UnknownCompiler string            `mapstructure:"unknown_compiler"`
	DockerImage     string            `mapstructure:"docker_image"`
	Profile         map[string]string `mapstructure:"profile"`
	Verbose         bool              `mapstructure:"verbose"`
}

// HomeDir returns the yacr home folder, ~/.yacr.
func HomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".yacr"), nil
}

// Default returns the configuration used when nothing is overridden.
func Default(home string) *Config {
	return &Config{
		CacheDir:        filepath.Join(home, "cache"),
		StoreDir:        filepath.Join(home, "store"),
		Workers:         5,
		RecipesDir:      filepath.Join(home, "recipes"),
		UnknownCompiler: string(resolver.AllowUnknown),
		Profile:         map[string]string{},
	}
}

// Load reads the configuration. Values come from, in increasing priority:
// defaults, the config file and YACR_* environment variables. An explicit
// path must exist; otherwise home/config.yaml is read when present.
func Load(path, home string) (*Config, error) {
	// profile keys such as compiler.version contain dots
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))

	defaults := Default(home)
	v.SetDefault("cache_dir", defaults.CacheDir)
	v.SetDefault("store_dir", defaults.StoreDir)
	v.SetDefault("workers", defaults.Workers)
	v.SetDefault("mirror", defaults.Mirror)
	v.SetDefault("recipes_dir", defaults.RecipesDir)
	v.SetDefault("unknown_compiler", defaults.UnknownCompiler)
	v.SetDefault("docker_image", defaults.DockerImage)
	v.SetDefault("profile", defaults.Profile)
	v.SetDefault("verbose", defaults.Verbose)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(home)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if _, err := resolver.ParseUnknownCompiler(c.UnknownCompiler); err != nil {
		return err
	}
	return nil
}

// Policy returns the configured unknown-compiler policy.
func (c *Config) Policy() resolver.UnknownCompiler {
	p, _ := resolver.ParseUnknownCompiler(c.UnknownCompiler)
	return p
}
