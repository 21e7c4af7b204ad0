package options

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Canonical boolean spellings.
const (
	True  = "True"
	False = "False"
)

var (
	// ErrUnknownOption is returned for an option that is not declared.
	ErrUnknownOption = errors.New("unknown option")
	// ErrInvalidValue is returned for a value outside the option's domain.
	ErrInvalidValue = errors.New("invalid option value")
)

// Kind is the kind of values an option domain holds.
type Kind string

const (
	KindBool  Kind = "bool"
	KindRange Kind = "range" // bounded integer range, inclusive
	KindSet   Kind = "set"   // enumerated set
)

// Domain is the set of values an option accepts.
type Domain struct {
	Kind   Kind
	Min    int
	Max    int
	Values []string // enumerated set members, canonical form
}

// Bool returns a boolean domain.
func Bool() Domain {
	return Domain{Kind: KindBool}
}

// Range returns a bounded integer domain.
func Range(min, max int) Domain {
	return Domain{Kind: KindRange, Min: min, Max: max}
}

// Set returns an enumerated domain.
func Set(values ...string) Domain {
	return Domain{Kind: KindSet, Values: values}
}

// Normalize checks raw against the domain and returns its canonical form.
func (d Domain) Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	switch d.Kind {
	case KindBool:
		switch strings.ToLower(raw) {
		case "true", "1", "yes", "on":
			return True, nil
		case "false", "0", "no", "off":
			return False, nil
		}
	case KindRange:
		n, err := strconv.Atoi(raw)
		if err == nil && n >= d.Min && n <= d.Max {
			return strconv.Itoa(n), nil
		}
	case KindSet:
		for _, v := range d.Values {
			if v == raw {
				return v, nil
			}
		}
	}
	return "", fmt.Errorf("%w %q, allowed: %s", ErrInvalidValue, raw, d)
}

// String describes the domain for error messages.
func (d Domain) String() string {
	switch d.Kind {
	case KindBool:
		return "[True, False]"
	case KindRange:
		return fmt.Sprintf("[%d..%d]", d.Min, d.Max)
	default:
		return "[" + strings.Join(d.Values, ", ") + "]"
	}
}

// UnmarshalYAML accepts either a list of allowed values or a {min, max} mapping.
// A list of booleans becomes a bool domain.
func (d *Domain) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		var r struct {
			Min *int `yaml:"min"`
			Max *int `yaml:"max"`
		}
		if err := node.Decode(&r); err != nil {
			return err
		}
		if r.Min == nil || r.Max == nil || *r.Min > *r.Max {
			return fmt.Errorf("line %d: range domain needs min <= max", node.Line)
		}
		*d = Range(*r.Min, *r.Max)
		return nil
	case yaml.SequenceNode:
		values := make([]string, 0, len(node.Content))
		allBool := len(node.Content) > 0
		for _, n := range node.Content {
			if n.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: option values must be scalars", n.Line)
			}
			if n.ShortTag() != "!!bool" {
				allBool = false
			}
			values = append(values, n.Value)
		}
		if allBool {
			*d = Bool()
			return nil
		}
		*d = Set(values...)
		return nil
	}
	return fmt.Errorf("line %d: option domain must be a list or a min/max mapping", node.Line)
}

// Spec maps option names to their domains.
type Spec map[string]Domain

// Normalize checks a single assignment against the declared options.
func (s Spec) Normalize(name, raw string) (string, error) {
	d, ok := s[name]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownOption, name)
	}
	v, err := d.Normalize(raw)
	if err != nil {
		return "", fmt.Errorf("option %s: %w", name, err)
	}
	return v, nil
}

// Names returns the declared option names, sorted.
func (s Spec) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Values maps option names to selected values in canonical form.
type Values map[string]string

// Clone returns a shallow copy. A nil map clones to an empty map.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Without returns a copy of v with the named options removed.
func (v Values) Without(names ...string) Values {
	out := v.Clone()
	for _, n := range names {
		delete(out, n)
	}
	return out
}

// Bool reports the boolean value of an option and whether it is present.
func (v Values) Bool(name string) (value, ok bool) {
	s, ok := v[name]
	if !ok {
		return false, false
	}
	return s == True, true
}

// Int reports the integer value of an option and whether it is present and numeric.
func (v Values) Int(name string) (int, bool) {
	s, ok := v[name]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Keys returns the option names, sorted.
func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge returns defaults overlaid with requested. Neither input is modified.
func Merge(defaults, requested Values) Values {
	out := defaults.Clone()
	for k, v := range requested {
		out[k] = v
	}
	return out
}

// Assignments holds -o style option assignments, either global or scoped to a package.
type Assignments struct {
	Global Values
	Scoped map[string]Values
}

// ParseAssignments parses "opt=value" and "pkg:opt=value" arguments.
func ParseAssignments(args []string) (Assignments, error) {
	a := Assignments{Global: Values{}, Scoped: map[string]Values{}}
	for _, arg := range args {
		lhs, value, ok := strings.Cut(arg, "=")
		lhs = strings.TrimSpace(lhs)
		if !ok || lhs == "" {
			return Assignments{}, fmt.Errorf("invalid option %q, expected [pkg:]name=value", arg)
		}
		value = strings.TrimSpace(value)
		if pkg, name, scoped := strings.Cut(lhs, ":"); scoped {
			if pkg == "" || name == "" {
				return Assignments{}, fmt.Errorf("invalid option %q, expected pkg:name=value", arg)
			}
			if a.Scoped[pkg] == nil {
				a.Scoped[pkg] = Values{}
			}
			a.Scoped[pkg][name] = value
			continue
		}
		a.Global[lhs] = value
	}
	return a, nil
}

// For returns the assignments that apply to the named package: scoped
// assignments override global ones. Global assignments are only kept for
// options the package declares.
func (a Assignments) For(pkg string, spec Spec) Values {
	out := Values{}
	for k, v := range a.Global {
		if _, ok := spec[k]; ok {
			out[k] = v
		}
	}
	for k, v := range a.Scoped[pkg] {
		out[k] = v
	}
	return out
}

// Requested returns every assignment addressed to the named package,
// global ones included, without filtering by declared options.
func (a Assignments) Requested(pkg string) Values {
	out := a.Global.Clone()
	for k, v := range a.Scoped[pkg] {
		out[k] = v
	}
	return out
}

// Override returns a with the assignments of over applied on top.
func (a Assignments) Override(over Assignments) Assignments {
	out := Assignments{
		Global: Merge(a.Global, over.Global),
		Scoped: map[string]Values{},
	}
	for pkg, v := range a.Scoped {
		out.Scoped[pkg] = v.Clone()
	}
	for pkg, v := range over.Scoped {
		out.Scoped[pkg] = Merge(out.Scoped[pkg], v)
	}
	return out
}
