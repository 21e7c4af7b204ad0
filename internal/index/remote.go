package index

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"gopkg.in/yaml.v3"

	"github.com/frederic-klein/yacr/internal/recipe"
)

const (
	defaultIndexPath = "index.yaml.gz"
	cacheTTL         = 24 * time.Hour
)

// catalog is the on-disk format of a mirror index.
type catalog struct {
	Recipes map[string]map[string]recipe.Source `yaml:"recipes"`
}

// Remote is a source catalog published by a mirror. It maps recipe
// versions to source archives and is used when a recipe does not list
// a source for the requested version itself.
type Remote struct {
	mirror    string
	cacheDir  string
	cacheFile string
	client    *http.Client
	sources   map[string]map[string]recipe.Source
}

// NewRemote creates a catalog for the given mirror.
func NewRemote(mirror, cacheDir string) *Remote {
	return &Remote{
		mirror:    strings.TrimSuffix(mirror, "/"),
		cacheDir:  cacheDir,
		cacheFile: filepath.Join(cacheDir, "index.yaml"),
		client:    &http.Client{},
		sources:   make(map[string]map[string]recipe.Source),
	}
}

// Load downloads the catalog unless a cached copy younger than a day exists,
// then parses it.
func (idx *Remote) Load(ctx context.Context) error {
	if err := os.MkdirAll(idx.cacheDir, 0755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	if idx.isCacheValid() {
		return idx.parseCache()
	}

	if err := idx.download(ctx); err != nil {
		return err
	}

	return idx.parseCache()
}

func (idx *Remote) isCacheValid() bool {
	info, err := os.Stat(idx.cacheFile)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) < cacheTTL
}

func (idx *Remote) download(ctx context.Context) error {
	url := fmt.Sprintf("%s/%s", idx.mirror, defaultIndexPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := idx.client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading index: HTTP %d", resp.StatusCode)
	}

	gzReader, err := gzip.NewReader(resp.Body)
	if err != nil {
		return fmt.Errorf("decompressing index: %w", err)
	}
	defer gzReader.Close()

	tmpPath := idx.cacheFile + ".tmp"
	outFile, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating cache file: %w", err)
	}

	_, err = io.Copy(outFile, gzReader)
	outFile.Close()
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing cache file: %w", err)
	}

	if err := os.Rename(tmpPath, idx.cacheFile); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming cache file: %w", err)
	}
	return nil
}

func (idx *Remote) parseCache() error {
	data, err := os.ReadFile(idx.cacheFile)
	if err != nil {
		return fmt.Errorf("opening cache file: %w", err)
	}

	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("parsing index: %w", err)
	}
	if c.Recipes != nil {
		idx.sources = c.Recipes
	}
	return nil
}

// Lookup finds the source of a recipe version in the catalog.
func (idx *Remote) Lookup(ref recipe.Ref) (recipe.Source, bool) {
	src, ok := idx.sources[ref.Name][ref.Version]
	return src, ok
}

// Mirror returns the configured mirror URL.
func (idx *Remote) Mirror() string {
	return idx.mirror
}
