package crx

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// ComponentID identifies the Screen AI component that reading mode needs to
// distill pages (and PDFs) without a signed-in profile.
const ComponentID = "mfhmdacoffpmifoibamicehhklffanao"

// InstallDirName is the profile subdirectory the browser loads the component from.
const InstallDirName = "screen_ai"

var versionRe = regexp.MustCompile(ComponentID + `_(.*?)_`)

// ErrUnsupportedPlatform is returned for platforms without a bundled package.
var ErrUnsupportedPlatform = errors.New("crx: unsupported platform")

// ErrPackageNotFound is returned when no package matches the platform.
var ErrPackageNotFound = fmt.Errorf("crx: package not found: %w", fs.ErrNotExist)

// Package is a bundled component package selected for installation.
type Package struct {
	Path     string
	Version  string
	Platform string
}

// PlatformFor maps a GOOS value to the platform tag used in package names.
func PlatformFor(goos string) (string, error) {
	switch goos {
	case "linux":
		return "linux", nil
	case "windows":
		return "win64", nil
	default:
		return "", fmt.Errorf("%w: %s (only windows and linux are supported)", ErrUnsupportedPlatform, goos)
	}
}

// Select picks the package for platform from dir. Names embed the version, so
// the lexicographically greatest match wins.
func Select(dir, platform string) (Package, error) {
	pattern := filepath.Join(dir, ComponentID+"_*_"+platform+"_*.crx3")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return Package{}, fmt.Errorf("crx: glob %s: %w", pattern, err)
	}
	if len(matches) == 0 {
		return Package{}, fmt.Errorf("%w in %s for %s", ErrPackageNotFound, dir, platform)
	}
	sort.Strings(matches)
	path := matches[len(matches)-1]

	m := versionRe.FindStringSubmatch(filepath.Base(path))
	if m == nil || m[1] == "" {
		return Package{}, fmt.Errorf("%w: cannot parse version from %s", ErrInvalidFormat, filepath.Base(path))
	}
	return Package{Path: path, Version: m[1], Platform: platform}, nil
}

// Install unpacks pkg into <profileDir>/screen_ai/<version>, overwriting
// existing files, and returns the destination directory.
func Install(pkg Package, profileDir string) (string, error) {
	a, err := Open(pkg.Path)
	if err != nil {
		return "", err
	}
	defer a.Close()

	zr, err := zip.NewReader(a, a.Size())
	if err != nil {
		return "", fmt.Errorf("%w: read archive: %v", ErrInvalidFormat, err)
	}

	dest := filepath.Join(profileDir, InstallDirName, pkg.Version)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dest, err)
	}
	for _, f := range zr.File {
		if err := extractFile(f, dest); err != nil {
			return "", err
		}
	}
	return dest, nil
}

func extractFile(f *zip.File, dest string) error {
	target := filepath.Join(dest, f.Name)
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
		return fmt.Errorf("%w: entry %q escapes destination", ErrInvalidFormat, f.Name)
	}
	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(target), err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", target, err)
	}
	return out.Close()
}
