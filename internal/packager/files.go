package packager

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// Copy copies every file under src whose slash-separated path relative to
// src matches pattern into dst, keeping the relative layout. A "*" in the
// pattern also matches across directories. It returns the number of files copied.
func Copy(pattern, src, dst string) (int, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	copied := 0
	err = filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if !g.Match(filepath.ToSlash(rel)) {
			return nil
		}
		if err := copyFile(path, filepath.Join(dst, rel)); err != nil {
			return err
		}
		copied++
		return nil
	})
	if err != nil {
		return copied, fmt.Errorf("copying %s from %s: %w", pattern, src, err)
	}
	return copied, nil
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Remove deletes the files directly inside dir whose name matches pattern.
// Subdirectories are not searched. A missing dir is not an error.
func Remove(pattern, dir string) (int, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", dir, err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !g.Match(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return removed, fmt.Errorf("removing %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// RemoveDir deletes dir and everything below it. A missing dir is not an error.
func RemoveDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing %s: %w", dir, err)
	}
	return nil
}

var libSuffixes = []string{".a", ".so", ".dylib", ".lib"}

// CollectLibs returns the link names of the libraries found directly in dir,
// sorted: libvsg.a and vsg.lib both yield "vsg".
func CollectLibs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	seen := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name, ok := libName(e.Name()); ok {
			seen[name] = true
		}
	}

	libs := make([]string, 0, len(seen))
	for name := range seen {
		libs = append(libs, name)
	}
	sort.Strings(libs)
	return libs, nil
}

func libName(file string) (string, bool) {
	// versioned shared objects: libvsg.so.13
	if i := strings.Index(file, ".so."); i > 0 {
		file = file[:i+3]
	}
	for _, suffix := range libSuffixes {
		if !strings.HasSuffix(file, suffix) {
			continue
		}
		name := strings.TrimSuffix(file, suffix)
		if suffix != ".lib" {
			name = strings.TrimPrefix(name, "lib")
		}
		return name, name != ""
	}
	return "", false
}
