package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/frederic-klein/yacr/internal/logging"
	"github.com/frederic-klein/yacr/internal/toolchain"
)

// Invoker drives an external build system through its three phases.
type Invoker interface {
	Configure(ctx context.Context, params toolchain.Parameters) error
	Build(ctx context.Context) error
	Install(ctx context.Context) error
}

// Dirs are the host folders a build works in.
type Dirs struct {
	Source  string
	Build   string
	Package string
}

// Container mount points used when building inside Docker.
const (
	containerSource  = "/src"
	containerBuild   = "/build"
	containerPackage = "/package"
)

// CMake builds a project with cmake, on the host or inside a Docker image.
type CMake struct {
	dirs        Dirs
	buildType   string
	dockerImage string // If set, cmake runs inside this Docker image
	runner      Runner
	logger      *log.Logger
}

// NewCMake creates a cmake invoker running on the host.
func NewCMake(dirs Dirs, buildType string, runner Runner, logger *log.Logger) *CMake {
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	return &CMake{
		dirs:      dirs,
		buildType: buildType,
		runner:    runner,
		logger:    logging.OrDiscard(logger).WithPrefix("cmake"),
	}
}

// NewDockerCMake creates a cmake invoker that runs inside Docker.
// The source, build and package folders are mounted into the container.
func NewDockerCMake(dirs Dirs, buildType, image string, runner Runner, logger *log.Logger) *CMake {
	c := NewCMake(dirs, buildType, runner, logger)
	c.dockerImage = image
	return c
}

// paths returns the folders as cmake sees them.
func (c *CMake) paths() Dirs {
	if c.dockerImage != "" {
		return Dirs{Source: containerSource, Build: containerBuild, Package: containerPackage}
	}
	return c.dirs
}

// Configure writes the toolchain file into the build folder and configures
// the project with the parameters passed as cache entries.
func (c *CMake) Configure(ctx context.Context, params toolchain.Parameters) error {
	if err := os.MkdirAll(c.dirs.Build, 0755); err != nil {
		return fmt.Errorf("creating build folder: %w", err)
	}
	if err := c.writeToolchain(params); err != nil {
		return err
	}

	p := c.paths()
	args := []string{
		"-S", p.Source,
		"-B", p.Build,
		"-DCMAKE_TOOLCHAIN_FILE=" + filepath.ToSlash(filepath.Join(p.Build, toolchain.FileName)),
		"-DCMAKE_INSTALL_PREFIX=" + filepath.ToSlash(p.Package),
	}
	if c.buildType != "" {
		args = append(args, "-DCMAKE_BUILD_TYPE="+c.buildType)
	}
	args = append(args, params.Args()...)

	c.logger.Debug("configuring", "source", c.dirs.Source, "parameters", len(params))
	if err := c.run(ctx, args...); err != nil {
		return fmt.Errorf("configuring: %w", err)
	}
	return nil
}

func (c *CMake) writeToolchain(params toolchain.Parameters) error {
	f, err := os.Create(filepath.Join(c.dirs.Build, toolchain.FileName))
	if err != nil {
		return fmt.Errorf("creating toolchain file: %w", err)
	}
	if err := toolchain.NewEmitter(f).Emit(params, c.buildType); err != nil {
		f.Close()
		return fmt.Errorf("writing toolchain file: %w", err)
	}
	return f.Close()
}

// Build compiles the configured project.
func (c *CMake) Build(ctx context.Context) error {
	args := []string{"--build", c.paths().Build}
	if c.buildType != "" {
		args = append(args, "--config", c.buildType)
	}
	c.logger.Debug("building", "build", c.dirs.Build)
	if err := c.run(ctx, args...); err != nil {
		return fmt.Errorf("building: %w", err)
	}
	return nil
}

// Install installs the build results into the package folder.
func (c *CMake) Install(ctx context.Context) error {
	if err := os.MkdirAll(c.dirs.Package, 0755); err != nil {
		return fmt.Errorf("creating package folder: %w", err)
	}
	args := []string{"--install", c.paths().Build}
	if c.buildType != "" {
		args = append(args, "--config", c.buildType)
	}
	c.logger.Debug("installing", "package", c.dirs.Package)
	if err := c.run(ctx, args...); err != nil {
		return fmt.Errorf("installing: %w", err)
	}
	return nil
}

func (c *CMake) run(ctx context.Context, args ...string) error {
	if c.dockerImage == "" {
		return c.runner.Run(ctx, c.dirs.Build, "cmake", args...)
	}

	// Run inside Docker container
	docker := []string{"run", "--rm",
		"-v", c.dirs.Source + ":" + containerSource,
		"-v", c.dirs.Build + ":" + containerBuild,
		"-v", c.dirs.Package + ":" + containerPackage,
		"-w", containerBuild,
		c.dockerImage,
		"cmake",
	}
	return c.runner.Run(ctx, c.dirs.Build, "docker", append(docker, args...)...)
}
