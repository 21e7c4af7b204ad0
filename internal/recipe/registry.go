package recipe

import (
	"embed"
	"fmt"
	"path"
	"sort"
)

//go:embed recipes/*.yaml
var builtinFS embed.FS

// Registry holds recipes by name.
type Registry struct {
	recipes map[string]*Recipe
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{recipes: make(map[string]*Recipe)}
}

// Builtin returns a registry with the recipes shipped with yacr.
func Builtin() (*Registry, error) {
	entries, err := builtinFS.ReadDir("recipes")
	if err != nil {
		return nil, fmt.Errorf("reading builtin recipes: %w", err)
	}

	reg := NewRegistry()
	for _, e := range entries {
		data, err := builtinFS.ReadFile(path.Join("recipes", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading builtin recipe %s: %w", e.Name(), err)
		}
		r, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("builtin recipe %s: %w", e.Name(), err)
		}
		reg.Add(r)
	}
	return reg, nil
}

// Add registers a recipe, replacing any recipe with the same name.
func (reg *Registry) Add(r *Recipe) {
	reg.recipes[r.Name] = r
}

// Get returns the named recipe.
func (reg *Registry) Get(name string) (*Recipe, bool) {
	r, ok := reg.recipes[name]
	return r, ok
}

// Names returns the registered recipe names, sorted.
func (reg *Registry) Names() []string {
	names := make([]string, 0, len(reg.recipes))
	for n := range reg.recipes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
