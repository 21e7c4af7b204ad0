package driver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/frederic-klein/yacr/internal/builder"
	"github.com/frederic-klein/yacr/internal/downloader"
	"github.com/frederic-klein/yacr/internal/extractor"
	"github.com/frederic-klein/yacr/internal/graph"
	"github.com/frederic-klein/yacr/internal/logging"
	"github.com/frederic-klein/yacr/internal/options"
	"github.com/frederic-klein/yacr/internal/packager"
	"github.com/frederic-klein/yacr/internal/pkginfo"
	"github.com/frederic-klein/yacr/internal/recipe"
	"github.com/frederic-klein/yacr/internal/resolver"
	"github.com/frederic-klein/yacr/internal/settings"
)

var (
	// ErrNoRecipe is returned when no recipe is registered for a reference.
	ErrNoRecipe = errors.New("no recipe")
	// ErrNoSource is returned when no source archive is known for a version.
	ErrNoSource = errors.New("no source")
)

// SourceCatalog maps recipe versions to source archives.
type SourceCatalog interface {
	Lookup(ref recipe.Ref) (recipe.Source, bool)
}

// InvokerFactory creates the build system invoker for a package build.
type InvokerFactory func(dirs builder.Dirs, buildType string) builder.Invoker

// Options configures a Driver.
type Options struct {
	StoreDir string
	WorkDir  string
	// Catalog is consulted when a recipe lists no source for a version. May be nil.
	Catalog     SourceCatalog
	DockerImage string
	Policy      resolver.UnknownCompiler
	// Runner runs source steps and, by default, cmake.
	Runner     builder.Runner
	NewInvoker InvokerFactory
	Logger     *log.Logger
}

// Package is a package in the store.
type Package struct {
	Ref        recipe.Ref
	Info       *pkginfo.Info
	Folder     string
	Libs       []string
	SystemLibs []string
	Cached     bool // already present in the store
}

// Driver takes recipes from sources to packages in the store.
type Driver struct {
	registry   *recipe.Registry
	downloader *downloader.Downloader
	extractor  *extractor.Extractor
	resolver   *resolver.Resolver
	catalog    SourceCatalog
	runner     builder.Runner
	newInvoker InvokerFactory
	storeDir   string
	workDir    string
	logger     *log.Logger
}

// New creates a driver.
func New(reg *recipe.Registry, dl *downloader.Downloader, opts Options) *Driver {
	d := &Driver{
		registry:   reg,
		downloader: dl,
		extractor:  extractor.NewExtractor(),
		resolver:   resolver.New(opts.Policy),
		catalog:    opts.Catalog,
		runner:     opts.Runner,
		newInvoker: opts.NewInvoker,
		storeDir:   opts.StoreDir,
		workDir:    opts.WorkDir,
		logger:     logging.OrDiscard(opts.Logger),
	}
	if d.runner == nil {
		d.runner = builder.NewExecRunner(d.logger)
	}
	if d.workDir == "" {
		d.workDir = filepath.Join(dl.CacheDir(), "build")
	}
	if d.newInvoker == nil {
		image := opts.DockerImage
		d.newInvoker = func(dirs builder.Dirs, buildType string) builder.Invoker {
			if image != "" {
				return builder.NewDockerCMake(dirs, buildType, image, d.runner, d.logger)
			}
			return builder.NewCMake(dirs, buildType, d.runner, d.logger)
		}
	}
	return d
}

// Resolve checks that the recipe version exists and can be built for env
// with the requested options, and returns the resolution.
func (d *Driver) Resolve(ref recipe.Ref, env settings.Environment, requested options.Values) (*recipe.Recipe, resolver.Resolution, error) {
	r, ok := d.registry.Get(ref.Name)
	if !ok {
		return nil, resolver.Resolution{}, fmt.Errorf("%w for %s", ErrNoRecipe, ref)
	}
	if _, err := d.source(r, ref); err != nil {
		return nil, resolver.Resolution{}, err
	}
	res, err := d.resolver.Resolve(env, r.Constraints(ref.Version), requested)
	if err != nil {
		return nil, resolver.Resolution{}, err
	}
	return r, res, nil
}

// PackageFolder returns the store folder of a package id.
func (d *Driver) PackageFolder(ref recipe.Ref, id string) string {
	return filepath.Join(d.storeDir, ref.Name, ref.Version, id)
}

// Create builds one package into the store. A package already stored with
// the same id is reused.
func (d *Driver) Create(ctx context.Context, ref recipe.Ref, env settings.Environment, requested options.Values) (*Package, error) {
	logger := d.logger.With("ref", ref)

	r, res, err := d.Resolve(ref, env, requested)
	if err != nil {
		return nil, err
	}

	info, err := pkginfo.New(r, env, res.Options)
	if err != nil {
		return nil, err
	}
	folder := d.PackageFolder(ref, info.PackageID)
	pkg := &Package{
		Ref:        ref,
		Info:       info,
		Folder:     folder,
		SystemLibs: r.PackageInfo.SystemLibs[env.OS],
	}

	if d.stored(folder, info.PackageID) {
		logger.Info("package already in store", "id", info.PackageID)
		pkg.Cached = true
		if r.PackageInfo.CollectLibs {
			if pkg.Libs, err = packager.CollectLibs(filepath.Join(folder, "lib")); err != nil {
				return nil, err
			}
		}
		return pkg, nil
	}

	archive, err := d.fetch(ctx, r, ref)
	if err != nil {
		return nil, err
	}

	buildRoot := filepath.Join(d.workDir, ref.Name, ref.Version, info.PackageID)
	if err := os.RemoveAll(buildRoot); err != nil {
		return nil, fmt.Errorf("cleaning build folder: %w", err)
	}
	dirs := builder.Dirs{
		Source:  filepath.Join(buildRoot, "src"),
		Build:   filepath.Join(buildRoot, "build"),
		Package: filepath.Join(buildRoot, "package"),
	}

	logger.Debug("extracting", "archive", archive)
	if err := d.extractor.Extract(archive, dirs.Source, true); err != nil {
		return nil, fmt.Errorf("extracting %s: %w", ref, err)
	}

	for _, step := range r.StepsFor(ref.Version) {
		logger.Debug("source step", "run", step.Run)
		dir := filepath.Join(dirs.Source, filepath.FromSlash(step.Dir))
		if err := d.runner.Run(ctx, dir, step.Run[0], step.Run[1:]...); err != nil {
			return nil, fmt.Errorf("source step of %s: %w", ref, err)
		}
	}

	var install func() error
	if !r.HeaderOnly {
		invoker := d.newInvoker(dirs, env.BuildType)
		logger.Info("building", "parameters", len(res.Parameters))
		if err := invoker.Configure(ctx, res.Parameters); err != nil {
			return nil, fmt.Errorf("building %s: %w", ref, err)
		}
		if err := invoker.Build(ctx); err != nil {
			return nil, fmt.Errorf("building %s: %w", ref, err)
		}
		install = func() error { return invoker.Install(ctx) }
	}

	p := packager.NewPackager(dirs.Source, dirs.Package, d.logger)
	if err := os.MkdirAll(dirs.Package, 0755); err != nil {
		return nil, fmt.Errorf("creating package folder: %w", err)
	}
	if err := p.Run(r.Package, install); err != nil {
		return nil, fmt.Errorf("packaging %s: %w", ref, err)
	}
	if r.PackageInfo.CollectLibs {
		if pkg.Libs, err = p.Libs(); err != nil {
			return nil, err
		}
	}
	if err := pkginfo.WriteFile(dirs.Package, info); err != nil {
		return nil, err
	}

	if err := d.store(dirs.Package, folder); err != nil {
		return nil, fmt.Errorf("storing %s: %w", ref, err)
	}
	logger.Info("created package", "id", info.PackageID)
	return pkg, nil
}

// source returns the source archive of a recipe version: the recipe's own
// sources first, then the catalog.
func (d *Driver) source(r *recipe.Recipe, ref recipe.Ref) (recipe.Source, error) {
	src, ok := r.Sources[ref.Version]
	if !ok && d.catalog != nil {
		src, ok = d.catalog.Lookup(ref)
	}
	if !ok || src.URL == "" {
		return recipe.Source{}, fmt.Errorf("%w for %s", ErrNoSource, ref)
	}
	return src, nil
}

// job returns the download of the source archive of ref.
func (d *Driver) job(r *recipe.Recipe, ref recipe.Ref) (downloader.Job, error) {
	src, err := d.source(r, ref)
	if err != nil {
		return downloader.Job{}, err
	}
	return downloader.Job{
		URL:      src.URL,
		DestPath: d.downloader.CachePath(ref.Name, ref.Version, src.URL),
		SHA256:   src.SHA256,
	}, nil
}

// fetch downloads the source archive of ref and returns its path.
func (d *Driver) fetch(ctx context.Context, r *recipe.Recipe, ref recipe.Ref) (string, error) {
	job, err := d.job(r, ref)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(job.DestPath); err != nil {
		warnUnverified(d.logger, ref, job)
	}
	results := d.downloader.Download(ctx, []downloader.Job{job})
	if results[0].Error != nil {
		return "", fmt.Errorf("fetching %s: %w", ref, results[0].Error)
	}
	return job.DestPath, nil
}

func warnUnverified(logger *log.Logger, ref recipe.Ref, job downloader.Job) {
	if job.SHA256 == "" {
		logger.Warn("source has no checksum", "ref", ref, "url", job.URL)
	}
}

// stored reports whether the store holds the package id in folder.
func (d *Driver) stored(folder, id string) bool {
	info, err := pkginfo.ReadFile(folder)
	return err == nil && info.PackageID == id
}

// store moves a finished package folder into the store, replacing any previous one.
func (d *Driver) store(src, folder string) error {
	if err := os.MkdirAll(filepath.Dir(folder), 0755); err != nil {
		return err
	}
	if err := os.RemoveAll(folder); err != nil {
		return err
	}
	return os.Rename(src, folder)
}

// Install creates every package required by roots, dependencies first.
// Requirements without a recipe are reported and skipped. All nodes are
// resolved before anything is fetched, and the sources of packages missing
// from the store are downloaded in one batch.
func (d *Driver) Install(ctx context.Context, roots []recipe.Ref, env settings.Environment, assignments options.Assignments) ([]*Package, error) {
	g, err := graph.NewBuilder(d.registry, d.logger).Build(roots)
	if err != nil {
		return nil, err
	}

	if err := d.prefetch(ctx, g, env, assignments); err != nil {
		return nil, err
	}

	var pkgs []*Package
	for _, node := range g.Order {
		if node.External() {
			d.logger.Warn("no recipe, expecting it to be provided by the system", "ref", node.Ref)
			continue
		}
		pkg, err := d.Create(ctx, node.Ref, env, assignments.For(node.Ref.Name, node.Recipe.Options))
		if err != nil {
			return pkgs, err
		}
		pkgs = append(pkgs, pkg)
	}
	return pkgs, nil
}

// prefetch resolves every node of g and downloads the sources of the
// packages not yet in the store with the downloader's worker pool.
func (d *Driver) prefetch(ctx context.Context, g *graph.Graph, env settings.Environment, assignments options.Assignments) error {
	var jobs []downloader.Job
	for _, node := range g.Order {
		if node.External() {
			continue
		}
		r, res, err := d.Resolve(node.Ref, env, assignments.For(node.Ref.Name, node.Recipe.Options))
		if err != nil {
			return err
		}
		info, err := pkginfo.New(r, env, res.Options)
		if err != nil {
			return err
		}
		if d.stored(d.PackageFolder(node.Ref, info.PackageID), info.PackageID) {
			continue
		}
		job, err := d.job(r, node.Ref)
		if err != nil {
			return err
		}
		warnUnverified(d.logger, node.Ref, job)
		jobs = append(jobs, job)
	}
	if len(jobs) == 0 {
		return nil
	}

	d.logger.Info("fetching sources", "count", len(jobs))
	for _, result := range d.downloader.Download(ctx, jobs) {
		if result.Error != nil {
			return fmt.Errorf("fetching %s: %w", result.Job.URL, result.Error)
		}
	}
	return nil
}

// List returns the stored packages of ref, sorted by package id.
func (d *Driver) List(ref recipe.Ref) ([]*Package, error) {
	dir := filepath.Join(d.storeDir, ref.Name, ref.Version)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading store: %w", err)
	}

	var pkgs []*Package
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		folder := filepath.Join(dir, e.Name())
		info, err := pkginfo.ReadFile(folder)
		if err != nil {
			d.logger.Warn("skipping package without info", "folder", folder)
			continue
		}
		libs, err := packager.CollectLibs(filepath.Join(folder, "lib"))
		if err != nil {
			return nil, err
		}
		pkgs = append(pkgs, &Package{Ref: ref, Info: info, Folder: folder, Libs: libs, Cached: true})
	}
	sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].Info.PackageID < pkgs[j].Info.PackageID })
	return pkgs, nil
}
