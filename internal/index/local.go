package index

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/frederic-klein/yacr/internal/recipe"
)

// Local is a directory of recipe files, one <name>.yaml per recipe.
type Local struct {
	dir string
}

// NewLocal creates a local recipe directory index.
func NewLocal(dir string) *Local {
	return &Local{dir: dir}
}

// EnsureDir creates the recipe directory if needed.
func (idx *Local) EnsureDir() error {
	return os.MkdirAll(idx.dir, 0755)
}

// LoadInto parses every recipe file in the directory and adds it to reg,
// overriding recipes of the same name. A missing directory is not an error.
func (idx *Local) LoadInto(reg *recipe.Registry) (int, error) {
	entries, err := os.ReadDir(idx.dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading recipe dir: %w", err)
	}

	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		r, err := recipe.Load(filepath.Join(idx.dir, e.Name()))
		if err != nil {
			return n, err
		}
		reg.Add(r)
		n++
	}
	return n, nil
}

// Dir returns the recipe directory.
func (idx *Local) Dir() string {
	return idx.dir
}
