package packager

import (
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/frederic-klein/yacr/internal/logging"
	"github.com/frederic-klein/yacr/internal/recipe"
)

// Packager runs the package steps of a recipe.
type Packager struct {
	sourceDir  string
	packageDir string
	logger     *log.Logger
}

// NewPackager creates a packager copying from sourceDir into packageDir.
func NewPackager(sourceDir, packageDir string, logger *log.Logger) *Packager {
	return &Packager{
		sourceDir:  sourceDir,
		packageDir: packageDir,
		logger:     logging.OrDiscard(logger).WithPrefix("package"),
	}
}

// Run executes steps in order. install is called for install steps and
// may be nil when the recipe has none.
func (p *Packager) Run(steps []recipe.PackageStep, install func() error) error {
	for i, step := range steps {
		switch {
		case step.Copy != nil:
			src := filepath.Join(p.sourceDir, filepath.FromSlash(step.Copy.Src))
			dst := filepath.Join(p.packageDir, filepath.FromSlash(step.Copy.Dst))
			n, err := Copy(step.Copy.Pattern, src, dst)
			if err != nil {
				return err
			}
			if n == 0 {
				p.logger.Warn("pattern matched no files", "pattern", step.Copy.Pattern, "src", step.Copy.Src)
			}
			p.logger.Debug("copied", "pattern", step.Copy.Pattern, "files", n)
		case step.Install:
			if install == nil {
				return fmt.Errorf("package step %d: install requested but no build system", i)
			}
			if err := install(); err != nil {
				return fmt.Errorf("install: %w", err)
			}
		case step.RmDir != "":
			if err := RemoveDir(filepath.Join(p.packageDir, filepath.FromSlash(step.RmDir))); err != nil {
				return err
			}
			p.logger.Debug("removed directory", "dir", step.RmDir)
		case step.Rm != nil:
			n, err := Remove(step.Rm.Pattern, filepath.Join(p.packageDir, filepath.FromSlash(step.Rm.Dir)))
			if err != nil {
				return err
			}
			p.logger.Debug("removed", "pattern", step.Rm.Pattern, "dir", step.Rm.Dir, "files", n)
		}
	}
	return nil
}

// Libs returns the libraries of the package's lib folder.
func (p *Packager) Libs() ([]string, error) {
	return CollectLibs(filepath.Join(p.packageDir, "lib"))
}
