package pkginfo

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/zeebo/blake3"

	"github.com/frederic-klein/yacr/internal/options"
	"github.com/frederic-klein/yacr/internal/recipe"
	"github.com/frederic-klein/yacr/internal/settings"
)

// FileName is the name of the info file written into every package folder.
const FileName = "yacrinfo.txt"

// Info describes one binary package: the inputs that determine its id.
type Info struct {
	Settings  map[string]string
	Options   options.Values
	Requires  []string
	PackageID string
}

// New collects the package info of a recipe built for env with the resolved
// options. Settings the recipe does not use are left out, and header-only
// recipes carry neither settings nor options.
func New(r *recipe.Recipe, env settings.Environment, opts options.Values) (*Info, error) {
	info := &Info{
		Settings: map[string]string{},
		Options:  options.Values{},
	}
	if !r.HeaderOnly {
		for k, v := range env.Map() {
			if r.UsesSetting(k) {
				info.Settings[k] = v
			}
		}
		info.Options = opts.Clone()
	}
	for _, ref := range r.Dependencies() {
		info.Requires = append(info.Requires, ref.String())
	}
	sort.Strings(info.Requires)

	id, err := info.ComputeID()
	if err != nil {
		return nil, err
	}
	info.PackageID = id
	return info, nil
}

// ComputeID returns the hex BLAKE3 digest of the canonical info text,
// excluding the package id itself.
func (i *Info) ComputeID() (string, error) {
	h := blake3.New()
	if err := NewEmitter(h).emitBody(i); err != nil {
		return "", fmt.Errorf("computing package id: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// WriteFile writes the info file into dir.
func WriteFile(dir string, info *Info) error {
	var buf bytes.Buffer
	if err := NewEmitter(&buf).Emit(info); err != nil {
		return fmt.Errorf("rendering package info: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing package info: %w", err)
	}
	return nil
}

// ReadFile reads the info file from dir.
func ReadFile(dir string) (*Info, error) {
	f, err := os.Open(filepath.Join(dir, FileName))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewParser(f).Parse()
}
