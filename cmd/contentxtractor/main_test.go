package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apppkg "github.com/hyperifyio/contentxtractor/internal/app"
	"github.com/hyperifyio/contentxtractor/internal/extract"
)

// Flags win over env, env wins over the config file, the file wins over defaults.
func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "cx.yaml")
	if err := os.WriteFile(cfgPath, []byte("max:\n  sessions: 3\nextract:\n  waitUntil: networkidle2\n  readingModeTimeout: 4s\nassetsDir: /file/assets\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	envPath := filepath.Join(dir, "cx.env")
	if err := os.WriteFile(envPath, []byte("CX_MAX_SESSIONS=5\nCX_ASSETS_DIR=/env/assets\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv(apppkg.EnvMaxSessions, "")
	t.Setenv(apppkg.EnvAssetsDir, "")

	cfg, version, err := loadConfig([]string{
		"-config", cfgPath,
		"--env=" + envPath,
		"-assets", "/flag/assets",
		"-url", "https://example.com/",
	}, io.Discard)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if version {
		t.Fatalf("version not requested")
	}
	if cfg.AssetsDir != "/flag/assets" {
		t.Fatalf("flag should win, got %q", cfg.AssetsDir)
	}
	if cfg.MaxSessions != 5 {
		t.Fatalf("env should win over file, got %d", cfg.MaxSessions)
	}
	if cfg.WaitUntil != "networkidle2" || cfg.ReadingModeTimeout != 4*time.Second {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if !cfg.Headless || cfg.ViewportWidth != extract.DefaultWidth {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if cfg.ConfigPath != cfgPath || len(cfg.EnvFiles) != 1 {
		t.Fatalf("sources not recorded: %q %v", cfg.ConfigPath, cfg.EnvFiles)
	}
}

func TestLoadConfig_ServeAndPositionalURL(t *testing.T) {
	t.Setenv(apppkg.EnvListen, "")
	cfg, _, err := loadConfig([]string{"-env", "", "-serve", ":9999"}, io.Discard)
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if !cfg.Serve || cfg.ListenAddr != ":9999" {
		t.Fatalf("serve not set: %+v", cfg)
	}

	cfg, _, err = loadConfig([]string{"-env", "", "-json", "https://example.com/page"}, io.Discard)
	if err != nil {
		t.Fatalf("positional: %v", err)
	}
	if cfg.URL != "https://example.com/page" || !cfg.JSONOutput {
		t.Fatalf("positional url not taken: %+v", cfg)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, _, err := loadConfig([]string{"-env", ""}, io.Discard); err == nil {
		t.Fatalf("expected error without url")
	}
	if _, _, err := loadConfig([]string{"-env", "", "-url", "https://example.com/", "-wait-until", "soon"}, io.Discard); err == nil {
		t.Fatalf("expected wait-until error")
	}
	if _, _, err := loadConfig([]string{"-env", "", "-config", filepath.Join(t.TempDir(), "missing.yaml")}, io.Discard); err == nil {
		t.Fatalf("expected missing config error")
	}
	if _, _, err := loadConfig([]string{"-h"}, io.Discard); !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("expected ErrHelp, got %v", err)
	}
	_, version, err := loadConfig([]string{"-env", "", "-version"}, io.Discard)
	if err != nil || !version {
		t.Fatalf("version: %v %v", version, err)
	}
}

func TestLookupFlagSet(t *testing.T) {
	args := []string{"-url", "https://x", "--config=a.yaml", "-env", "b.env", "--", "-config", "ignored"}
	if v := lookupFlag(args, "config"); v != "a.yaml" {
		t.Fatalf("config = %q", v)
	}
	if v, ok := lookupFlagSet(args, "env"); !ok || v != "b.env" {
		t.Fatalf("env = %q %v", v, ok)
	}
	if _, ok := lookupFlagSet(args, "missing"); ok {
		t.Fatalf("missing flag reported as set")
	}
	if _, ok := lookupFlagSet([]string{"---config=x"}, "config"); ok {
		t.Fatalf("three dashes is not a flag")
	}
}

// run surfaces request validation before any browser work starts.
func TestRun_InvalidURL(t *testing.T) {
	cfg := apppkg.DefaultConfig()
	cfg.URL = "mailto:someone@example.com"
	cfg.ChromePath = "/nonexistent/chrome"
	cfg.AssetsDir = t.TempDir()
	cfg.MaintenanceSchedule = ""
	err := run(context.Background(), cfg)
	if !errors.Is(err, extract.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestLoadConfig_RawHTMLHelpNamesLoadedPage(t *testing.T) {
	var out bytes.Buffer
	if _, _, err := loadConfig([]string{"-env", "", "-h"}, &out); !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("expected ErrHelp, got %v", err)
	}
	if !strings.Contains(out.String(), "loaded page's HTML") || strings.Contains(out.String(), "reading mode HTML") {
		t.Fatalf("unexpected -raw-html help:\n%s", out.String())
	}
}
