package extractor

import (
	"archive/tar"
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// ErrUnsafePath is returned for archive entries that would land outside the destination.
var ErrUnsafePath = errors.New("archive entry escapes destination")

// Format is an archive container format.
type Format int

const (
	FormatUnknown Format = iota
	FormatTar
	FormatTarGz
	FormatTarZst
	FormatZip
)

// DetectFormat guesses the archive format from the file name.
func DetectFormat(name string) Format {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGz
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return FormatTarZst
	case strings.HasSuffix(lower, ".tar"):
		return FormatTar
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip
	}
	return FormatUnknown
}

// Extractor unpacks source archives.
type Extractor struct{}

// NewExtractor creates a new extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract unpacks archivePath into destDir. With stripRoot the single
// top-level directory of the archive is removed from every entry path.
func (e *Extractor) Extract(archivePath, destDir string, stripRoot bool) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}

	switch DetectFormat(archivePath) {
	case FormatZip:
		return e.extractZip(archivePath, destDir, stripRoot)
	case FormatUnknown:
		return fmt.Errorf("unsupported archive format: %s", filepath.Base(archivePath))
	}

	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer file.Close()

	var r io.Reader = file
	switch DetectFormat(archivePath) {
	case FormatTarGz:
		gzReader, err := gzip.NewReader(file)
		if err != nil {
			return fmt.Errorf("decompressing archive: %w", err)
		}
		defer gzReader.Close()
		r = gzReader
	case FormatTarZst:
		zr, err := zstd.NewReader(file)
		if err != nil {
			return fmt.Errorf("decompressing archive: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	return e.extractTar(tar.NewReader(r), destDir, stripRoot)
}

// stripper removes the common root directory from entry names.
type stripper struct {
	enabled bool
	root    string
}

// strip returns the entry name without its root, or "" when the entry is the root itself.
func (s *stripper) strip(name string) (string, error) {
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
		}
	}
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if !s.enabled {
		return name, nil
	}
	root, rest, _ := strings.Cut(name, "/")
	if s.root == "" {
		s.root = root
	} else if root != s.root {
		return "", fmt.Errorf("archive has more than one root folder (%s, %s)", s.root, root)
	}
	return rest, nil
}

func target(destDir, name string) (string, error) {
	t := filepath.Join(destDir, filepath.FromSlash(name))
	if !within(destDir, t) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	if err := checkParents(destDir, t); err != nil {
		return "", err
	}
	return t, nil
}

func within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// checkParents fails when a folder between destDir and dst is a symlink.
// Entries are never written through links extracted earlier.
func checkParents(destDir, dst string) error {
	rel, err := filepath.Rel(destDir, filepath.Dir(dst))
	if err != nil {
		return err
	}
	if rel == "." {
		return nil
	}
	cur := destDir
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		fi, err := os.Lstat(cur)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("%w: %s passes through link %s", ErrUnsafePath, dst, cur)
		}
	}
	return nil
}

func (e *Extractor) extractTar(tarReader *tar.Reader, destDir string, stripRoot bool) error {
	s := &stripper{enabled: stripRoot}

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}

		// pax global headers carry no file
		if header.Typeflag == tar.TypeXGlobalHeader {
			continue
		}

		name, err := s.strip(header.Name)
		if err != nil {
			return err
		}
		if name == "" {
			continue
		}
		dst, err := target(destDir, name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dst, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(dst, tarReader, os.FileMode(header.Mode)); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := symlink(destDir, dst, header.Linkname); err != nil {
				return err
			}
		}
	}

	return nil
}

func (e *Extractor) extractZip(archivePath, destDir string, stripRoot bool) error {
	// entry names are checked below
	zr, err := zip.OpenReader(archivePath)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer zr.Close()

	s := &stripper{enabled: stripRoot}
	for _, f := range zr.File {
		name, err := s.strip(f.Name)
		if err != nil {
			return err
		}
		if name == "" {
			continue
		}
		dst, err := target(destDir, name)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dst, 0755); err != nil {
				return err
			}
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("reading %s: %w", f.Name, err)
		}
		err = writeFile(dst, rc, f.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeFile(dst string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if fi, err := os.Lstat(dst); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		if err := os.Remove(dst); err != nil {
			return err
		}
	}
	perm := mode.Perm()
	if perm == 0 {
		perm = 0644
	}
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// symlink creates a link at dst, refusing targets that resolve outside destDir.
// Targets may only climb with leading ".." so that every link resolves
// against real folders.
func symlink(destDir, dst, linkname string) error {
	if filepath.IsAbs(linkname) || path.IsAbs(linkname) {
		return fmt.Errorf("%w: link %s -> %s", ErrUnsafePath, dst, linkname)
	}
	named := false
	for _, part := range strings.Split(linkname, "/") {
		switch part {
		case "..":
			if named {
				return fmt.Errorf("%w: link %s -> %s", ErrUnsafePath, dst, linkname)
			}
		case ".", "":
		default:
			named = true
		}
	}
	if !within(destDir, filepath.Join(filepath.Dir(dst), filepath.FromSlash(linkname))) {
		return fmt.Errorf("%w: link %s -> %s", ErrUnsafePath, dst, linkname)
	}
	if fi, err := os.Lstat(dst); err == nil && fi.IsDir() {
		return fmt.Errorf("%w: link %s replaces a folder", ErrUnsafePath, dst)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	os.Remove(dst)
	return os.Symlink(linkname, dst)
}
