package browser

import (
	"fmt"
	"os/exec"

	"github.com/go-rod/rod/lib/launcher"
)

// Locator resolves the browser executable for the current platform.
type Locator interface {
	Path() (string, error)
}

// Fixed is a Locator that always returns the configured path.
type Fixed string

func (f Fixed) Path() (string, error) {
	if f == "" {
		return "", ErrNotFound
	}
	return string(f), nil
}

// NewLocator picks the platform variant for goos once at startup.
func NewLocator(goos string) (Locator, error) {
	switch goos {
	case "linux":
		return &linuxLocator{lookPath: exec.LookPath, fallback: launcher.LookPath}, nil
	case "windows":
		return &windowsLocator{query: registryAppPath}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, goos)
	}
}

var linuxNames = []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"}

type linuxLocator struct {
	lookPath func(string) (string, error)
	fallback func() (string, bool)
}

func (l *linuxLocator) Path() (string, error) {
	for _, name := range linuxNames {
		if p, err := l.lookPath(name); err == nil {
			return p, nil
		}
	}
	if l.fallback != nil {
		if p, ok := l.fallback(); ok {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: none of %v on PATH", ErrNotFound, linuxNames)
}

const chromeAppPathKey = `SOFTWARE\Microsoft\Windows\CurrentVersion\App Paths\chrome.exe`

// registry hives checked in order
var windowsHives = []string{"HKLM", "HKCU"}

type windowsLocator struct {
	query func(hive, key string) (string, error)
}

func (w *windowsLocator) Path() (string, error) {
	for _, hive := range windowsHives {
		if p, err := w.query(hive, chromeAppPathKey); err == nil && p != "" {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: chrome.exe not registered under App Paths", ErrNotFound)
}
