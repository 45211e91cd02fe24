package app

import (
	"time"

	"github.com/hyperifyio/contentxtractor/internal/extract"
)

const (
	DefaultListenAddr          = ":8080"
	DefaultAssetsDir           = "assets/screen_ai"
	DefaultMaxSessions         = 2
	DefaultMaintenanceSchedule = "@every 15m"
	DefaultOrphanMaxAge        = time.Hour
)

// Config holds runtime configuration for the application.
type Config struct {
	// One-shot extraction
	URL           string
	OutputPath    string
	OutputPDFPath string
	JSONOutput    bool

	// Serving
	ListenAddr string
	MCPAddr    string
	Serve      bool

	// Browser
	ChromePath string
	AssetsDir  string
	TempDir    string

	// Request defaults
	Headless           bool
	DisableLinks       bool
	ReturnRawHTML      bool
	WaitUntil          string
	ReadingModeTimeout time.Duration
	ViewportWidth      int
	ViewportHeight     int

	MaxSessions int

	// Cache
	CacheDir         string
	CacheMaxAge      time.Duration
	CacheClear       bool
	CacheStrictPerms bool

	MaintenanceSchedule string
	OrphanMaxAge        time.Duration

	ConfigPath string
	EnvFiles   []string
	Verbose    bool
}

// DefaultConfig returns the built-in defaults; file, env and flags layer on top.
func DefaultConfig() Config {
	return Config{
		ListenAddr:          DefaultListenAddr,
		AssetsDir:           DefaultAssetsDir,
		Headless:            true,
		DisableLinks:        false,
		WaitUntil:           "load",
		ReadingModeTimeout:  extract.DefaultReadingModeTimeout,
		ViewportWidth:       extract.DefaultWidth,
		ViewportHeight:      extract.DefaultHeight,
		MaxSessions:         DefaultMaxSessions,
		MaintenanceSchedule: DefaultMaintenanceSchedule,
		OrphanMaxAge:        DefaultOrphanMaxAge,
	}
}
