package pkginfo

import (
	"fmt"
	"io"
	"sort"
)

// Emitter writes package info files.
type Emitter struct {
	w io.Writer
}

// NewEmitter creates a new package info emitter.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w}
}

// Emit writes the info sections followed by the package id.
func (e *Emitter) Emit(info *Info) error {
	if err := e.emitBody(info); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "\n[package_id]\n%s\n", info.PackageID); err != nil {
		return err
	}
	return nil
}

func (e *Emitter) emitBody(info *Info) error {
	if err := e.emitMap("settings", info.Settings); err != nil {
		return err
	}
	if _, err := fmt.Fprint(e.w, "\n"); err != nil {
		return err
	}
	if err := e.emitMap("options", info.Options); err != nil {
		return err
	}

	if _, err := fmt.Fprint(e.w, "\n[requires]\n"); err != nil {
		return err
	}
	requires := make([]string, len(info.Requires))
	copy(requires, info.Requires)
	sort.Strings(requires)
	for _, req := range requires {
		if _, err := fmt.Fprintf(e.w, "%s\n", req); err != nil {
			return err
		}
	}
	return nil
}

func (e *Emitter) emitMap(section string, m map[string]string) error {
	if _, err := fmt.Fprintf(e.w, "[%s]\n", section); err != nil {
		return err
	}
	for _, k := range sortedKeys(m) {
		if _, err := fmt.Fprintf(e.w, "%s=%s\n", k, m[k]); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
