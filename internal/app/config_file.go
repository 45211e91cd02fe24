package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	cronlib "github.com/robfig/cron/v3"
	yaml "gopkg.in/yaml.v3"

	"github.com/hyperifyio/contentxtractor/internal/browser"
)

// FileConfig represents the single-file configuration schema.
type FileConfig struct {
	Output    string `yaml:"output" json:"output"`
	OutputPDF string `yaml:"outputPDF" json:"outputPDF"`

	Listen    string `yaml:"listen" json:"listen"`
	MCPListen string `yaml:"mcpListen" json:"mcpListen"`

	Chrome struct {
		Path     string `yaml:"path" json:"path"`
		Headless *bool  `yaml:"headless" json:"headless"`
		TempDir  string `yaml:"tempDir" json:"tempDir"`
	} `yaml:"chrome" json:"chrome"`

	AssetsDir string `yaml:"assetsDir" json:"assetsDir"`

	Extract struct {
		DisableLinks       *bool         `yaml:"disableLinks" json:"disableLinks"`
		ReturnRawHTML      bool          `yaml:"returnRawHtml" json:"returnRawHtml"`
		WaitUntil          string        `yaml:"waitUntil" json:"waitUntil"`
		ReadingModeTimeout time.Duration `yaml:"readingModeTimeout" json:"readingModeTimeout"`
		Viewport           struct {
			Width  int `yaml:"width" json:"width"`
			Height int `yaml:"height" json:"height"`
		} `yaml:"viewport" json:"viewport"`
	} `yaml:"extract" json:"extract"`

	Max struct {
		Sessions int `yaml:"sessions" json:"sessions"`
	} `yaml:"max" json:"max"`

	Cache struct {
		Dir         string        `yaml:"dir" json:"dir"`
		MaxAge      time.Duration `yaml:"maxAge" json:"maxAge"`
		Clear       bool          `yaml:"clear" json:"clear"`
		StrictPerms bool          `yaml:"strictPerms" json:"strictPerms"`
	} `yaml:"cache" json:"cache"`

	Maintenance struct {
		Schedule     string        `yaml:"schedule" json:"schedule"`
		OrphanMaxAge time.Duration `yaml:"orphanMaxAge" json:"orphanMaxAge"`
	} `yaml:"maintenance" json:"maintenance"`

	Verbose bool `yaml:"verbose" json:"verbose"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		// Try YAML then JSON
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays the values present in fc onto cfg. It runs before
// env overrides and flags, so only fields still at their default are touched.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	def := DefaultConfig()

	if cfg.OutputPath == "" && fc.Output != "" {
		cfg.OutputPath = fc.Output
	}
	if cfg.OutputPDFPath == "" && fc.OutputPDF != "" {
		cfg.OutputPDFPath = fc.OutputPDF
	}
	if (cfg.ListenAddr == "" || cfg.ListenAddr == def.ListenAddr) && fc.Listen != "" {
		cfg.ListenAddr = fc.Listen
	}
	if cfg.MCPAddr == "" && fc.MCPListen != "" {
		cfg.MCPAddr = fc.MCPListen
	}

	if cfg.ChromePath == "" && fc.Chrome.Path != "" {
		cfg.ChromePath = fc.Chrome.Path
	}
	if fc.Chrome.Headless != nil {
		cfg.Headless = *fc.Chrome.Headless
	}
	if cfg.TempDir == "" && fc.Chrome.TempDir != "" {
		cfg.TempDir = fc.Chrome.TempDir
	}
	if (cfg.AssetsDir == "" || cfg.AssetsDir == def.AssetsDir) && fc.AssetsDir != "" {
		cfg.AssetsDir = fc.AssetsDir
	}

	if fc.Extract.DisableLinks != nil {
		cfg.DisableLinks = *fc.Extract.DisableLinks
	}
	if !cfg.ReturnRawHTML && fc.Extract.ReturnRawHTML {
		cfg.ReturnRawHTML = true
	}
	if (cfg.WaitUntil == "" || cfg.WaitUntil == def.WaitUntil) && fc.Extract.WaitUntil != "" {
		cfg.WaitUntil = fc.Extract.WaitUntil
	}
	if (cfg.ReadingModeTimeout == 0 || cfg.ReadingModeTimeout == def.ReadingModeTimeout) && fc.Extract.ReadingModeTimeout > 0 {
		cfg.ReadingModeTimeout = fc.Extract.ReadingModeTimeout
	}
	if fc.Extract.Viewport.Width > 0 && fc.Extract.Viewport.Height > 0 {
		cfg.ViewportWidth, cfg.ViewportHeight = fc.Extract.Viewport.Width, fc.Extract.Viewport.Height
	}

	if (cfg.MaxSessions == 0 || cfg.MaxSessions == def.MaxSessions) && fc.Max.Sessions > 0 {
		cfg.MaxSessions = fc.Max.Sessions
	}

	if cfg.CacheDir == "" && fc.Cache.Dir != "" {
		cfg.CacheDir = fc.Cache.Dir
	}
	if cfg.CacheMaxAge == 0 && fc.Cache.MaxAge > 0 {
		cfg.CacheMaxAge = fc.Cache.MaxAge
	}
	if !cfg.CacheClear && fc.Cache.Clear {
		cfg.CacheClear = true
	}
	if !cfg.CacheStrictPerms && fc.Cache.StrictPerms {
		cfg.CacheStrictPerms = true
	}

	if (cfg.MaintenanceSchedule == "" || cfg.MaintenanceSchedule == def.MaintenanceSchedule) && fc.Maintenance.Schedule != "" {
		cfg.MaintenanceSchedule = fc.Maintenance.Schedule
	}
	if (cfg.OrphanMaxAge == 0 || cfg.OrphanMaxAge == def.OrphanMaxAge) && fc.Maintenance.OrphanMaxAge > 0 {
		cfg.OrphanMaxAge = fc.Maintenance.OrphanMaxAge
	}
	if !cfg.Verbose && fc.Verbose {
		cfg.Verbose = true
	}
}

var scheduleParser = cronlib.NewParser(cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor)

// ValidateConfig performs schema validation for the settings in use.
func ValidateConfig(cfg Config) error {
	if !cfg.Serve && cfg.MCPAddr == "" && strings.TrimSpace(cfg.URL) == "" {
		return errors.New("config: a url is required unless serving")
	}
	if cfg.Serve && strings.TrimSpace(cfg.ListenAddr) == "" {
		return errors.New("config: listen address is required when serving")
	}
	if strings.TrimSpace(cfg.AssetsDir) == "" {
		return errors.New("config: assets dir is required")
	}
	if _, err := browser.ParseWaitUntil(cfg.WaitUntil); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.ReadingModeTimeout < 0 || cfg.CacheMaxAge < 0 || cfg.OrphanMaxAge < 0 {
		return errors.New("config: negative durations are not allowed")
	}
	if cfg.ViewportWidth <= 0 || cfg.ViewportHeight <= 0 {
		return errors.New("config: viewport must be positive")
	}
	if cfg.MaxSessions < 0 {
		return errors.New("config: negative limits are not allowed")
	}
	if cfg.MaintenanceSchedule != "" {
		if _, err := scheduleParser.Parse(cfg.MaintenanceSchedule); err != nil {
			return fmt.Errorf("config: maintenance schedule: %w", err)
		}
	}
	return nil
}
