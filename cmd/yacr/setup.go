package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/frederic-klein/yacr/internal/config"
	"github.com/frederic-klein/yacr/internal/downloader"
	"github.com/frederic-klein/yacr/internal/driver"
	"github.com/frederic-klein/yacr/internal/index"
	"github.com/frederic-klein/yacr/internal/logging"
	"github.com/frederic-klein/yacr/internal/recipe"
	"github.com/frederic-klein/yacr/internal/requirements"
	"github.com/frederic-klein/yacr/internal/settings"
)

// session holds what every command needs.
type session struct {
	cfg      *config.Config
	logger   *log.Logger
	registry *recipe.Registry
	driver   *driver.Driver
}

func setup(ctx context.Context) (*session, error) {
	home, err := config.HomeDir()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath, home)
	if err != nil {
		return nil, err
	}
	logger := logging.New(os.Stderr, verbose || cfg.Verbose)

	reg, err := recipe.Builtin()
	if err != nil {
		return nil, err
	}
	local := index.NewLocal(cfg.RecipesDir)
	if err := local.EnsureDir(); err != nil {
		return nil, fmt.Errorf("creating recipe dir: %w", err)
	}
	n, err := local.LoadInto(reg)
	if err != nil {
		return nil, fmt.Errorf("loading local recipes: %w", err)
	}
	logger.Debug("loaded recipes", "builtin", len(reg.Names())-n, "local", n, "dir", local.Dir())

	opts := driver.Options{
		StoreDir:    cfg.StoreDir,
		DockerImage: cfg.DockerImage,
		Policy:      cfg.Policy(),
		Logger:      logger,
	}
	if cfg.Mirror != "" {
		remote := index.NewRemote(cfg.Mirror, cfg.CacheDir)
		logger.Debug("loading recipe index", "mirror", remote.Mirror())
		if err := remote.Load(ctx); err != nil {
			return nil, fmt.Errorf("loading recipe index: %w", err)
		}
		opts.Catalog = remote
	}

	dl := downloader.NewDownloader(cfg.Workers, cfg.CacheDir)
	return &session{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		driver:   driver.New(reg, dl, opts),
	}, nil
}

// environment assembles the settings: detected host values, then the
// configured profile, the --profile file and finally -s overrides.
func (s *session) environment() (settings.Environment, error) {
	m := settings.Merge(settings.Detect(), s.cfg.Profile)

	if profilePath != "" {
		profile, err := settings.LoadProfile(profilePath)
		if err != nil {
			return settings.Environment{}, err
		}
		m = settings.Merge(m, profile)
	}

	overrides, err := settings.ParsePairs(settingPairs)
	if err != nil {
		return settings.Environment{}, err
	}
	m = settings.Merge(m, overrides)

	env, err := settings.FromMap(m)
	if err != nil {
		return settings.Environment{}, fmt.Errorf("invalid settings: %w", err)
	}
	s.logger.Debug("settings", "env", env)
	return env, nil
}

func requirementsFile() (*requirements.File, error) {
	file, err := requirements.NewParser().ParseFile(requiresPath)
	if err != nil {
		return nil, fmt.Errorf("parsing requirements: %w", err)
	}
	return file, nil
}
