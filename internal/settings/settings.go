package settings

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// OS names as they appear in profiles and recipes.
const (
	Windows = "Windows"
	Linux   = "Linux"
	Macos   = "Macos"
	FreeBSD = "FreeBSD"
)

// Compiler families.
const (
	MSVC         = "msvc"
	VisualStudio = "Visual Studio"
	GCC          = "gcc"
	Clang        = "clang"
	AppleClang   = "apple-clang"
)

// Runtime is the language runtime linkage mode of the primary vendor toolchain.
type Runtime string

const (
	RuntimeMT  Runtime = "MT"
	RuntimeMTd Runtime = "MTd"
	RuntimeMD  Runtime = "MD"
	RuntimeMDd Runtime = "MDd"
)

// Static reports whether the runtime is linked statically.
func (r Runtime) Static() bool {
	return r == RuntimeMT || r == RuntimeMTd
}

// Setting keys accepted on the command line and in profiles.
const (
	KeyOS              = "os"
	KeyArch            = "arch"
	KeyCompiler        = "compiler"
	KeyCompilerVersion = "compiler.version"
	KeyRuntime         = "compiler.runtime"
	KeyRuntimeType     = "compiler.runtime_type"
	KeyCppStd          = "compiler.cppstd"
	KeyBuildType       = "build_type"
)

var knownKeys = map[string]bool{
	KeyOS: true, KeyArch: true, KeyCompiler: true, KeyCompilerVersion: true,
	KeyRuntime: true, KeyRuntimeType: true, KeyCppStd: true, KeyBuildType: true,
}

// Environment describes the platform and toolchain a package is built for.
// It is a value type; resolution never mutates it.
type Environment struct {
	OS              string
	Arch            string
	Compiler        string
	CompilerVersion string
	Runtime         Runtime // empty unless the primary vendor toolchain is used
	CppStd          string  // empty when not declared
	BuildType       string
}

// IsPrimaryToolchain reports whether the platform vendor's own compiler is in use.
func (e Environment) IsPrimaryToolchain() bool {
	return e.Compiler == MSVC || e.Compiler == VisualStudio
}

// Map returns the environment as a settings map. Empty values are omitted.
func (e Environment) Map() map[string]string {
	m := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	set(KeyOS, e.OS)
	set(KeyArch, e.Arch)
	set(KeyCompiler, e.Compiler)
	set(KeyCompilerVersion, e.CompilerVersion)
	set(KeyRuntime, string(e.Runtime))
	set(KeyCppStd, e.CppStd)
	set(KeyBuildType, e.BuildType)
	return m
}

// String renders the environment as sorted key=value pairs.
func (e Environment) String() string {
	m := e.Map()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + m[k]
	}
	return strings.Join(parts, " ")
}

// FromMap builds an Environment from a settings map.
// The runtime may be given either as MT/MTd/MD/MDd or as static/dynamic
// combined with compiler.runtime_type (Debug or Release).
func FromMap(m map[string]string) (Environment, error) {
	for k := range m {
		if !knownKeys[k] {
			return Environment{}, fmt.Errorf("unknown setting %q", k)
		}
	}

	env := Environment{
		OS:              m[KeyOS],
		Arch:            m[KeyArch],
		Compiler:        m[KeyCompiler],
		CompilerVersion: m[KeyCompilerVersion],
		CppStd:          m[KeyCppStd],
		BuildType:       m[KeyBuildType],
	}

	rt, err := parseRuntime(m[KeyRuntime], m[KeyRuntimeType])
	if err != nil {
		return Environment{}, err
	}
	env.Runtime = rt

	if env.Compiler != "" && env.CompilerVersion == "" {
		return Environment{}, fmt.Errorf("setting %s is required when %s is set", KeyCompilerVersion, KeyCompiler)
	}
	return env, nil
}

func parseRuntime(runtime, runtimeType string) (Runtime, error) {
	debug := strings.EqualFold(runtimeType, "Debug")
	switch strings.ToLower(runtime) {
	case "":
		return "", nil
	case "mt":
		return RuntimeMT, nil
	case "mtd":
		return RuntimeMTd, nil
	case "md":
		return RuntimeMD, nil
	case "mdd":
		return RuntimeMDd, nil
	case "static":
		if debug {
			return RuntimeMTd, nil
		}
		return RuntimeMT, nil
	case "dynamic":
		if debug {
			return RuntimeMDd, nil
		}
		return RuntimeMD, nil
	}
	return "", fmt.Errorf("invalid %s %q", KeyRuntime, runtime)
}

// ParsePairs parses key=value arguments such as those passed with -s.
func ParsePairs(pairs []string) (map[string]string, error) {
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid setting %q, expected key=value", p)
		}
		m[k] = strings.TrimSpace(v)
	}
	return m, nil
}

// Merge returns a new map with the entries of base overridden by over.
func Merge(base, over map[string]string) map[string]string {
	m := make(map[string]string, len(base)+len(over))
	for k, v := range base {
		m[k] = v
	}
	for k, v := range over {
		m[k] = v
	}
	return m
}

// Profile is a named set of settings stored as YAML.
type Profile struct {
	Settings map[string]string `yaml:"settings"`
}

// LoadProfile reads a profile file.
func LoadProfile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing profile %s: %w", path, err)
	}
	if p.Settings == nil {
		p.Settings = map[string]string{}
	}
	return p.Settings, nil
}

// Detect returns the host OS, architecture and a Release build type.
// The compiler is not probed; it comes from a profile or the command line.
func Detect() map[string]string {
	m := map[string]string{KeyBuildType: "Release"}
	switch runtime.GOOS {
	case "windows":
		m[KeyOS] = Windows
	case "darwin":
		m[KeyOS] = Macos
	case "freebsd":
		m[KeyOS] = FreeBSD
	default:
		m[KeyOS] = Linux
	}
	switch runtime.GOARCH {
	case "amd64":
		m[KeyArch] = "x86_64"
	case "386":
		m[KeyArch] = "x86"
	case "arm64":
		m[KeyArch] = "armv8"
	default:
		m[KeyArch] = runtime.GOARCH
	}
	return m
}
