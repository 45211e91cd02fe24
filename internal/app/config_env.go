package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables recognized by ApplyEnvOverrides.
const (
	EnvListen              = "CX_LISTEN"
	EnvMCPListen           = "CX_MCP_LISTEN"
	EnvChromePath          = "CX_CHROME_PATH"
	EnvAssetsDir           = "CX_ASSETS_DIR"
	EnvTempDir             = "CX_TEMP_DIR"
	EnvHeadless            = "CX_HEADLESS"
	EnvDisableLinks        = "CX_DISABLE_LINKS"
	EnvRawHTML             = "CX_RAW_HTML"
	EnvWaitUntil           = "CX_WAIT_UNTIL"
	EnvReadingModeTimeout  = "CX_READING_MODE_TIMEOUT"
	EnvViewport            = "CX_VIEWPORT"
	EnvMaxSessions         = "CX_MAX_SESSIONS"
	EnvCacheDir            = "CX_CACHE_DIR"
	EnvCacheMaxAge         = "CX_CACHE_MAX_AGE"
	EnvCacheClear          = "CX_CACHE_CLEAR"
	EnvCacheStrictPerms    = "CX_CACHE_STRICT_PERMS"
	EnvMaintenanceSchedule = "CX_MAINTENANCE_SCHEDULE"
	EnvVerbose             = "CX_VERBOSE"
)

// ApplyEnvOverrides overrides cfg fields with environment variables when the
// corresponding variables are set. This lets env take precedence over a
// config file while flags, applied afterwards, stay highest.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString(&cfg.ListenAddr, EnvListen)
	setString(&cfg.MCPAddr, EnvMCPListen)
	setString(&cfg.ChromePath, EnvChromePath)
	setString(&cfg.AssetsDir, EnvAssetsDir)
	setString(&cfg.TempDir, EnvTempDir)
	setString(&cfg.WaitUntil, EnvWaitUntil)
	setString(&cfg.CacheDir, EnvCacheDir)
	setString(&cfg.MaintenanceSchedule, EnvMaintenanceSchedule)

	setDuration := func(dst *time.Duration, key string) {
		if s := os.Getenv(key); s != "" {
			if d, err := time.ParseDuration(s); err == nil {
				*dst = d
			}
		}
	}
	setDuration(&cfg.ReadingModeTimeout, EnvReadingModeTimeout)
	setDuration(&cfg.CacheMaxAge, EnvCacheMaxAge)

	if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(EnvMaxSessions))); err == nil && n > 0 {
		cfg.MaxSessions = n
	}
	// CX_VIEWPORT is "<width>x<height>"
	if v := strings.TrimSpace(os.Getenv(EnvViewport)); v != "" {
		if w, h, ok := parseViewport(v); ok {
			cfg.ViewportWidth, cfg.ViewportHeight = w, h
		}
	}

	// Booleans override when env present and truthy/falsey
	setBool := func(dst *bool, key string) {
		if s := strings.ToLower(strings.TrimSpace(os.Getenv(key))); s != "" {
			switch s {
			case "1", "true", "yes", "on":
				*dst = true
			case "0", "false", "no", "off":
				*dst = false
			}
		}
	}
	setBool(&cfg.Headless, EnvHeadless)
	setBool(&cfg.DisableLinks, EnvDisableLinks)
	setBool(&cfg.ReturnRawHTML, EnvRawHTML)
	setBool(&cfg.CacheClear, EnvCacheClear)
	setBool(&cfg.CacheStrictPerms, EnvCacheStrictPerms)
	setBool(&cfg.Verbose, EnvVerbose)
}

func parseViewport(s string) (int, int, bool) {
	w, h, found := strings.Cut(strings.ToLower(s), "x")
	if !found {
		return 0, 0, false
	}
	width, err1 := strconv.Atoi(strings.TrimSpace(w))
	height, err2 := strconv.Atoi(strings.TrimSpace(h))
	if err1 != nil || err2 != nil || width <= 0 || height <= 0 {
		return 0, 0, false
	}
	return width, height, true
}

// ApplyEnvToConfig fills only the fields that are still empty from the
// environment. Use ApplyEnvOverrides when env should win over a config file.
func ApplyEnvToConfig(cfg *Config) {
	if cfg == nil {
		return
	}
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = strings.TrimSpace(os.Getenv(key))
		}
	}
	fill(&cfg.ListenAddr, EnvListen)
	fill(&cfg.MCPAddr, EnvMCPListen)
	fill(&cfg.ChromePath, EnvChromePath)
	fill(&cfg.AssetsDir, EnvAssetsDir)
	fill(&cfg.TempDir, EnvTempDir)
	fill(&cfg.WaitUntil, EnvWaitUntil)
	fill(&cfg.CacheDir, EnvCacheDir)
	fill(&cfg.MaintenanceSchedule, EnvMaintenanceSchedule)
	if cfg.MaxSessions == 0 {
		if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(EnvMaxSessions))); err == nil && n > 0 {
			cfg.MaxSessions = n
		}
	}
}
