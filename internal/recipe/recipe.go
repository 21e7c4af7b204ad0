package recipe

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/frederic-klein/yacr/internal/options"
	"github.com/frederic-klein/yacr/internal/resolver"
	"github.com/frederic-klein/yacr/internal/settings"
)

// Ref identifies a recipe at a given version, written name/version.
type Ref struct {
	Name    string
	Version string
}

var refRe = regexp.MustCompile(`^([a-z0-9][a-z0-9_.+-]*)/([A-Za-z0-9][A-Za-z0-9_.+-]*)$`)

// ParseRef parses a name/version reference.
func ParseRef(s string) (Ref, error) {
	m := refRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Ref{}, fmt.Errorf("invalid reference %q, expected name/version", s)
	}
	return Ref{Name: m[1], Version: m[2]}, nil
}

func (r Ref) String() string {
	return r.Name + "/" + r.Version
}

// Source is where the sources of one version are fetched from.
type Source struct {
	URL    string `yaml:"url"`
	SHA256 string `yaml:"sha256"`
}

// Validation holds the configuration constraints of a recipe.
type Validation struct {
	MinCppStd                  int               `yaml:"min_cppstd"`
	PrimaryToolchainMinVersion int               `yaml:"primary_toolchain_min_version"`
	ForbiddenRuntimes          []string          `yaml:"forbidden_runtimes"`
	CompilerMinimums           map[string]string `yaml:"compiler_minimums"`
	SharedOption               string            `yaml:"shared_option"`
	PICOption                  string            `yaml:"pic_option"`
}

// Variable maps an option onto a toolchain parameter.
type Variable struct {
	Name     string `yaml:"name"`
	Option   string `yaml:"option"`
	Encoding string `yaml:"encoding"`
}

// SourceStep is a command run in the source folder after extraction.
type SourceStep struct {
	Version string   `yaml:"version"` // empty applies to every version
	Dir     string   `yaml:"dir"`
	Run     []string `yaml:"run"`
}

// CopyRule copies files matching Pattern from Src (relative to the source
// folder) to Dst (relative to the package folder).
type CopyRule struct {
	Pattern string `yaml:"pattern"`
	Src     string `yaml:"src"`
	Dst     string `yaml:"dst"`
}

// RemoveRule removes files matching Pattern directly inside Dir of the package folder.
type RemoveRule struct {
	Pattern string `yaml:"pattern"`
	Dir     string `yaml:"dir"`
}

// PackageStep is one step of the package phase. Exactly one field is set.
type PackageStep struct {
	Copy    *CopyRule   `yaml:"copy"`
	Install bool        `yaml:"install"`
	RmDir   string      `yaml:"rmdir"`
	Rm      *RemoveRule `yaml:"rm"`
}

// PackageInfo describes how consumers use the package.
type PackageInfo struct {
	CMakeFileName   string              `yaml:"cmake_file_name"`
	CMakeTargetName string              `yaml:"cmake_target_name"`
	CollectLibs     bool                `yaml:"collect_libs"`
	SystemLibs      map[string][]string `yaml:"system_libs"`
}

// Recipe describes how to fetch, configure, build and package a library.
type Recipe struct {
	Name            string            `yaml:"name"`
	Description     string            `yaml:"description"`
	License         string            `yaml:"license"`
	Homepage        string            `yaml:"homepage"`
	URL             string            `yaml:"url"`
	Topics          []string          `yaml:"topics"`
	Settings        []string          `yaml:"settings"`
	Options         options.Spec      `yaml:"options"`
	DefaultOptions  options.Values    `yaml:"default_options"`
	Requires        []string          `yaml:"requires"`
	HeaderOnly      bool              `yaml:"header_only"`
	Sources         map[string]Source `yaml:"sources"`
	Validation      Validation        `yaml:"validation"`
	Variables       []Variable        `yaml:"variables"`
	RuntimeVariable string            `yaml:"runtime_variable"`
	SourceSteps     []SourceStep      `yaml:"source_steps"`
	Package         []PackageStep     `yaml:"package"`
	PackageInfo     PackageInfo       `yaml:"package_info"`
}

// Parse decodes and validates a recipe. Default option values are
// normalized to their canonical form.
func Parse(data []byte) (*Recipe, error) {
	var r Recipe
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing recipe: %w", err)
	}
	if err := r.validate(); err != nil {
		return nil, fmt.Errorf("recipe %s: %w", r.Name, err)
	}
	return &r, nil
}

// Load reads a recipe file.
func Load(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading recipe: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func (r *Recipe) validate() error {
	if r.Name == "" {
		return fmt.Errorf("missing name")
	}
	if r.Options == nil {
		r.Options = options.Spec{}
	}

	defaults := make(options.Values, len(r.DefaultOptions))
	for name, raw := range r.DefaultOptions {
		v, err := r.Options.Normalize(name, raw)
		if err != nil {
			return fmt.Errorf("default_options: %w", err)
		}
		defaults[name] = v
	}
	r.DefaultOptions = defaults

	for _, req := range r.Requires {
		if _, err := ParseRef(req); err != nil {
			return fmt.Errorf("requires: %w", err)
		}
	}

	for _, v := range r.Variables {
		if _, ok := r.Options[v.Option]; !ok {
			return fmt.Errorf("variable %s refers to undeclared option %q", v.Name, v.Option)
		}
		switch resolver.Encoding(v.Encoding) {
		case "", resolver.EncodeBool, resolver.EncodeInt, resolver.EncodeValue:
		default:
			return fmt.Errorf("variable %s: unknown encoding %q", v.Name, v.Encoding)
		}
	}

	for _, rt := range r.Validation.ForbiddenRuntimes {
		switch settings.Runtime(rt) {
		case settings.RuntimeMT, settings.RuntimeMTd, settings.RuntimeMD, settings.RuntimeMDd:
		default:
			return fmt.Errorf("validation: unknown runtime %q", rt)
		}
	}

	for i, step := range r.Package {
		n := 0
		if step.Copy != nil {
			n++
		}
		if step.Install {
			n++
		}
		if step.RmDir != "" {
			n++
		}
		if step.Rm != nil {
			n++
		}
		if n != 1 {
			return fmt.Errorf("package step %d must set exactly one action", i)
		}
	}

	for i, step := range r.SourceSteps {
		if len(step.Run) == 0 {
			return fmt.Errorf("source step %d has no command", i)
		}
	}
	return nil
}

// Versions returns the versions the recipe has sources for, newest first.
func (r *Recipe) Versions() []string {
	versions := make([]string, 0, len(r.Sources))
	for v := range r.Sources {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool {
		vi, erri := semver.NewVersion(versions[i])
		vj, errj := semver.NewVersion(versions[j])
		if erri != nil || errj != nil {
			return versions[i] > versions[j]
		}
		return vi.GreaterThan(vj)
	})
	return versions
}

// Latest returns the newest version, or "" when the recipe has no sources.
func (r *Recipe) Latest() string {
	if v := r.Versions(); len(v) > 0 {
		return v[0]
	}
	return ""
}

// StepsFor returns the source steps that apply to a version.
func (r *Recipe) StepsFor(version string) []SourceStep {
	var steps []SourceStep
	for _, s := range r.SourceSteps {
		if s.Version == "" || s.Version == version {
			steps = append(steps, s)
		}
	}
	return steps
}

// Constraints returns the resolver input for this recipe at the given version.
func (r *Recipe) Constraints(version string) resolver.Constraints {
	c := resolver.Constraints{
		Recipe:            Ref{Name: r.Name, Version: version}.String(),
		Spec:              r.Options,
		Defaults:          r.DefaultOptions,
		SharedOption:      r.Validation.SharedOption,
		PICOption:         r.Validation.PICOption,
		MinCppStd:         r.Validation.MinCppStd,
		PrimaryMinVersion: r.Validation.PrimaryToolchainMinVersion,
		CompilerMinimums:  r.Validation.CompilerMinimums,
		RuntimeVariable:   r.RuntimeVariable,
	}
	for _, rt := range r.Validation.ForbiddenRuntimes {
		c.ForbiddenRuntimes = append(c.ForbiddenRuntimes, settings.Runtime(rt))
	}
	for _, v := range r.Variables {
		c.Variables = append(c.Variables, resolver.Variable{
			Name:     v.Name,
			Option:   v.Option,
			Encoding: resolver.Encoding(v.Encoding),
		})
	}
	return c
}

// Dependencies returns the parsed requirements.
func (r *Recipe) Dependencies() []Ref {
	refs := make([]Ref, 0, len(r.Requires))
	for _, req := range r.Requires {
		ref, _ := ParseRef(req)
		refs = append(refs, ref)
	}
	return refs
}

// UsesSetting reports whether the recipe's binaries depend on a setting.
// Header-only recipes depend on none.
func (r *Recipe) UsesSetting(key string) bool {
	if r.HeaderOnly {
		return false
	}
	top, _, _ := strings.Cut(key, ".")
	for _, s := range r.Settings {
		if s == top {
			return true
		}
	}
	return false
}
