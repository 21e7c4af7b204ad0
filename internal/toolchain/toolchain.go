package toolchain

import (
	"fmt"
	"io"
	"sort"
	"strconv"
)

// FileName is the name of the generated CMake toolchain file.
const FileName = "yacr_toolchain.cmake"

const header = "# generated by yacr, do not edit\n"

// Parameters maps toolchain variable names to values handed to the build invoker.
// Values are bool, int or string.
type Parameters map[string]any

// Names returns the parameter names, sorted.
func (p Parameters) Names() []string {
	names := make([]string, 0, len(p))
	for n := range p {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Args renders the parameters as CMake -D cache arguments, sorted by name.
func (p Parameters) Args() []string {
	args := make([]string, 0, len(p))
	for _, n := range p.Names() {
		args = append(args, fmt.Sprintf("-D%s:%s=%s", n, cacheType(p[n]), FormatValue(p[n])))
	}
	return args
}

// FormatValue renders a parameter value the way CMake expects it.
func FormatValue(v any) string {
	switch val := v.(type) {
	case bool:
		if val {
			return "ON"
		}
		return "OFF"
	case int:
		return strconv.Itoa(val)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

func cacheType(v any) string {
	if _, ok := v.(bool); ok {
		return "BOOL"
	}
	return "STRING"
}

// Emitter writes CMake toolchain files.
type Emitter struct {
	w io.Writer
}

// NewEmitter creates a new toolchain file emitter.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w}
}

// Emit writes one cache entry per parameter, sorted by name, preceded by the
// build type when one is given.
func (e *Emitter) Emit(p Parameters, buildType string) error {
	if _, err := fmt.Fprint(e.w, header); err != nil {
		return err
	}

	if buildType != "" {
		if _, err := fmt.Fprintf(e.w, "set(CMAKE_BUILD_TYPE \"%s\" CACHE STRING \"\" FORCE)\n", buildType); err != nil {
			return err
		}
	}

	for _, n := range p.Names() {
		v := p[n]
		if _, err := fmt.Fprintf(e.w, "set(%s %s CACHE %s \"\" FORCE)\n", n, quote(v), cacheType(v)); err != nil {
			return err
		}
	}
	return nil
}

func quote(v any) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	return FormatValue(v)
}
