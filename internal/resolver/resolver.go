package resolver

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/frederic-klein/yacr/internal/options"
	"github.com/frederic-klein/yacr/internal/settings"
	"github.com/frederic-klein/yacr/internal/toolchain"
)

// Default names of the options pruning looks at.
const (
	DefaultSharedOption = "shared"
	DefaultPICOption    = "fPIC"
)

// UnknownCompiler decides the outcome for compiler families missing from
// the minimum version table.
type UnknownCompiler string

const (
	AllowUnknown  UnknownCompiler = "allow"
	RejectUnknown UnknownCompiler = "reject"
)

// ParseUnknownCompiler parses a policy name. Empty means allow.
func ParseUnknownCompiler(s string) (UnknownCompiler, error) {
	switch UnknownCompiler(strings.ToLower(s)) {
	case "", AllowUnknown:
		return AllowUnknown, nil
	case RejectUnknown:
		return RejectUnknown, nil
	}
	return "", fmt.Errorf("invalid unknown compiler policy %q, expected allow or reject", s)
}

// Encoding is how an option value is rendered into a toolchain parameter.
type Encoding string

const (
	EncodeBool  Encoding = "bool"  // boolean
	EncodeInt   Encoding = "int"   // boolean as integer 1 or 0
	EncodeValue Encoding = "value" // integer when numeric, otherwise the raw string
)

// Variable binds a toolchain parameter to an option.
type Variable struct {
	Name     string
	Option   string
	Encoding Encoding
}

// Constraints is what the resolver needs to know about a recipe.
// Zero values disable the corresponding check.
type Constraints struct {
	Recipe            string
	Spec              options.Spec
	Defaults          options.Values
	SharedOption      string
	PICOption         string
	MinCppStd         int
	PrimaryMinVersion int
	ForbiddenRuntimes []settings.Runtime
	CompilerMinimums  map[string]string
	Variables         []Variable
	RuntimeVariable   string
}

func (c *Constraints) sharedOption() string {
	if c.SharedOption == "" {
		return DefaultSharedOption
	}
	return c.SharedOption
}

func (c *Constraints) picOption() string {
	if c.PICOption == "" {
		return DefaultPICOption
	}
	return c.PICOption
}

// Resolution is the outcome of a successful resolve.
type Resolution struct {
	Options    options.Values
	Parameters toolchain.Parameters
}

type rule struct {
	name  string
	check func(env settings.Environment, c *Constraints) error
}

// Resolver decides whether a configuration is buildable and derives its
// toolchain parameters. It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	unknown UnknownCompiler
	rules   []rule
}

// New creates a resolver with the given unknown-compiler policy.
func New(unknown UnknownCompiler) *Resolver {
	r := &Resolver{unknown: unknown}
	r.rules = []rule{
		{"cppstd", checkCppStd},
		{"primary toolchain version", checkPrimaryVersion},
		{"runtime", checkRuntime},
		{"compiler minimum version", r.checkCompilerMinimum},
	}
	return r
}

// Resolve is New(AllowUnknown).Resolve.
func Resolve(env settings.Environment, c Constraints, requested options.Values) (Resolution, error) {
	return New(AllowUnknown).Resolve(env, c, requested)
}

// Resolve validates the requested options, prunes options the platform does
// not support, runs the validation rules in priority order and derives the
// toolchain parameters. The first failing rule ends the resolution.
func (r *Resolver) Resolve(env settings.Environment, c Constraints, requested options.Values) (Resolution, error) {
	normalized, err := normalize(&c, requested)
	if err != nil {
		return Resolution{}, err
	}

	opts := Prune(env, c, options.Merge(c.Defaults, normalized))

	for _, rl := range r.rules {
		if err := rl.check(env, &c); err != nil {
			return Resolution{}, err
		}
	}

	return Resolution{
		Options:    opts,
		Parameters: derive(env, &c, opts),
	}, nil
}

// Prune returns a copy of opts without the position-independent-code option
// when building for Windows or when the shared option is enabled.
func Prune(env settings.Environment, c Constraints, opts options.Values) options.Values {
	pic := c.picOption()
	out := opts.Clone()
	if env.OS == settings.Windows {
		out = out.Without(pic)
	}
	if shared, _ := out.Bool(c.sharedOption()); shared {
		out = out.Without(pic)
	}
	return out
}

func normalize(c *Constraints, requested options.Values) (options.Values, error) {
	out := make(options.Values, len(requested))
	for _, name := range requested.Keys() {
		v, err := c.Spec.Normalize(name, requested[name])
		if err != nil {
			kind := InvalidOptionValue
			if errors.Is(err, options.ErrUnknownOption) {
				kind = UnknownOption
			}
			return nil, &ConfigError{Kind: kind, Recipe: c.Recipe, Reason: err.Error(), Err: err}
		}
		out[name] = v
	}
	return out, nil
}

func checkCppStd(env settings.Environment, c *Constraints) error {
	if env.CppStd == "" || c.MinCppStd == 0 {
		return nil
	}
	have, err := dialectYear(env.CppStd)
	if err != nil {
		return &ConfigError{Kind: InvalidSetting, Recipe: c.Recipe, Reason: err.Error(), Err: err}
	}
	want, err := dialectYear(strconv.Itoa(c.MinCppStd))
	if err != nil {
		return &ConfigError{Kind: InvalidSetting, Recipe: c.Recipe, Reason: err.Error(), Err: err}
	}
	if have < want {
		return &ConfigError{
			Kind:   UnsupportedStandard,
			Recipe: c.Recipe,
			Reason: fmt.Sprintf("current cppstd (%s) is lower than the required C++ standard (%d)", env.CppStd, c.MinCppStd),
		}
	}
	return nil
}

// dialectYear maps a cppstd value such as 17, gnu17 or 98 to the year of the revision.
func dialectYear(std string) (int, error) {
	s := strings.TrimPrefix(strings.ToLower(std), "gnu")
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 99 {
		return 0, fmt.Errorf("invalid cppstd %q", std)
	}
	if n >= 90 {
		return 1900 + n, nil
	}
	return 2000 + n, nil
}

// Visual Studio product versions mapped to the compiler's own numbering.
var visualStudioVersions = map[string]string{
	"14": "190",
	"15": "191",
	"16": "192",
	"17": "193",
}

func primaryVersion(env settings.Environment) string {
	if env.Compiler != settings.VisualStudio {
		return env.CompilerVersion
	}
	major, _, _ := strings.Cut(env.CompilerVersion, ".")
	if v, ok := visualStudioVersions[major]; ok {
		return v
	}
	return env.CompilerVersion
}

func checkPrimaryVersion(env settings.Environment, c *Constraints) error {
	if !env.IsPrimaryToolchain() || c.PrimaryMinVersion == 0 {
		return nil
	}
	have := primaryVersion(env)
	cmp, err := compareVersions(have, strconv.Itoa(c.PrimaryMinVersion))
	if err != nil {
		return &ConfigError{Kind: InvalidSetting, Recipe: c.Recipe, Reason: err.Error(), Err: err}
	}
	if cmp < 0 {
		return &ConfigError{
			Kind:   ToolchainTooOld,
			Recipe: c.Recipe,
			Reason: fmt.Sprintf("%s %s is older than the required version %d", env.Compiler, have, c.PrimaryMinVersion),
		}
	}
	return nil
}

var allRuntimes = []settings.Runtime{settings.RuntimeMT, settings.RuntimeMTd, settings.RuntimeMD, settings.RuntimeMDd}

func checkRuntime(env settings.Environment, c *Constraints) error {
	if !env.IsPrimaryToolchain() || !slices.Contains(c.ForbiddenRuntimes, env.Runtime) {
		return nil
	}
	var allowed []string
	for _, rt := range allRuntimes {
		if !slices.Contains(c.ForbiddenRuntimes, rt) {
			allowed = append(allowed, string(rt))
		}
	}
	return &ConfigError{
		Kind:   UnsupportedRuntimeMode,
		Recipe: c.Recipe,
		Reason: fmt.Sprintf("%s runtime %s is not supported, only %s", env.Compiler, env.Runtime, strings.Join(allowed, "/")),
	}
}

func (r *Resolver) checkCompilerMinimum(env settings.Environment, c *Constraints) error {
	if env.IsPrimaryToolchain() || env.Compiler == "" || len(c.CompilerMinimums) == 0 {
		return nil
	}
	minimum, ok := c.CompilerMinimums[env.Compiler]
	if !ok {
		if r.unknown == RejectUnknown {
			return &ConfigError{
				Kind:   UnsupportedStandard,
				Recipe: c.Recipe,
				Reason: fmt.Sprintf("compiler %s is not known to support C++%d", env.Compiler, c.MinCppStd),
			}
		}
		return nil
	}
	cmp, err := compareVersions(env.CompilerVersion, minimum)
	if err != nil {
		return &ConfigError{Kind: InvalidSetting, Recipe: c.Recipe, Reason: err.Error(), Err: err}
	}
	if cmp < 0 {
		return &ConfigError{
			Kind:   UnsupportedStandard,
			Recipe: c.Recipe,
			Reason: fmt.Sprintf("requires C++%d, which %s %s does not support (minimum %s)", c.MinCppStd, env.Compiler, env.CompilerVersion, minimum),
		}
	}
	return nil
}

func compareVersions(a, b string) (int, error) {
	va, err := semver.NewVersion(a)
	if err != nil {
		return 0, fmt.Errorf("invalid compiler version %q: %w", a, err)
	}
	vb, err := semver.NewVersion(b)
	if err != nil {
		return 0, fmt.Errorf("invalid compiler version %q: %w", b, err)
	}
	return va.Compare(vb), nil
}

func derive(env settings.Environment, c *Constraints, opts options.Values) toolchain.Parameters {
	p := toolchain.Parameters{}

	if env.IsPrimaryToolchain() && c.RuntimeVariable != "" {
		p[c.RuntimeVariable] = !env.Runtime.Static()
	}

	for _, v := range c.Variables {
		raw, ok := opts[v.Option]
		if !ok {
			continue
		}
		enc := v.Encoding
		if enc == "" {
			enc = EncodeValue
			if c.Spec[v.Option].Kind == options.KindBool {
				enc = EncodeBool
			}
		}
		switch enc {
		case EncodeBool:
			p[v.Name] = raw == options.True
		case EncodeInt:
			if raw == options.True {
				p[v.Name] = 1
			} else {
				p[v.Name] = 0
			}
		default:
			if n, ok := opts.Int(v.Option); ok {
				p[v.Name] = n
			} else {
				p[v.Name] = raw
			}
		}
	}
	return p
}
