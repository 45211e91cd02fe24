package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/contentxtractor/internal/app"
	"github.com/hyperifyio/contentxtractor/internal/mcpserver"
	"github.com/hyperifyio/contentxtractor/internal/server"
)

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, showVersion, err := loadConfig(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Error().Err(err).Msg("invalid configuration")
		os.Exit(2)
	}
	if showVersion {
		fmt.Printf("contentxtractor %s (commit %s, built %s)\n", app.BuildVersion, app.BuildCommit, app.BuildDate)
		return
	}

	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("run failed")
		// Exit 2 when the page answered but could not be extracted, 1 otherwise.
		if errors.Is(err, app.ErrNotExtracted) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// loadConfig layers configuration as defaults < config file < environment <
// flags. The config file and dotenv paths are read from args before the full
// flag set is parsed so that flags still override everything else.
func loadConfig(args []string, errOut io.Writer) (app.Config, bool, error) {
	configPath := lookupFlag(args, "config")
	envFiles := ".env"
	if v, ok := lookupFlagSet(args, "env"); ok {
		envFiles = v
	}
	if err := app.LoadEnvFiles(splitList(envFiles)...); err != nil {
		return app.Config{}, false, fmt.Errorf("load env files: %w", err)
	}

	cfg := app.DefaultConfig()
	if configPath != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			return app.Config{}, false, fmt.Errorf("load config %s: %w", configPath, err)
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	app.ApplyEnvOverrides(&cfg)
	cfg.ConfigPath = configPath
	cfg.EnvFiles = splitList(envFiles)

	var (
		serveAddr   string
		showVersion bool
		ignored     string
	)
	fs := flag.NewFlagSet("contentxtractor", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&cfg.URL, "url", cfg.URL, "URL of the page to extract")
	fs.BoolVar(&cfg.JSONOutput, "json", cfg.JSONOutput, "Write the full result JSON instead of Markdown")
	fs.StringVar(&cfg.OutputPath, "output", cfg.OutputPath, "Path to write the output (default stdout)")
	fs.StringVar(&cfg.OutputPDFPath, "output.pdf", cfg.OutputPDFPath, "Also render the Markdown to this PDF file")
	fs.StringVar(&serveAddr, "serve", "", "Serve the HTTP API on this address, e.g. :8080")
	fs.StringVar(&cfg.MCPAddr, "mcp", cfg.MCPAddr, "Serve the MCP extract tool over SSE on this address")
	fs.StringVar(&ignored, "config", configPath, "Path to a YAML or JSON config file")
	fs.StringVar(&ignored, "env", envFiles, "Comma-separated dotenv files to load; later files win")
	fs.BoolVar(&cfg.Headless, "headless", cfg.Headless, "Run the browser headless")
	fs.BoolVar(&cfg.DisableLinks, "disable-links", cfg.DisableLinks, "Render links as plain text in reading mode")
	fs.BoolVar(&cfg.ReturnRawHTML, "raw-html", cfg.ReturnRawHTML, "Include the loaded page's HTML in JSON output")
	fs.StringVar(&cfg.WaitUntil, "wait-until", cfg.WaitUntil, "Navigation completion: load, domcontentloaded, networkidle0 or networkidle2")
	fs.DurationVar(&cfg.ReadingModeTimeout, "reading-mode-timeout", cfg.ReadingModeTimeout, "How long to wait for reading mode before using the page body (0 waits without limit)")
	fs.IntVar(&cfg.ViewportWidth, "width", cfg.ViewportWidth, "Viewport width")
	fs.IntVar(&cfg.ViewportHeight, "height", cfg.ViewportHeight, "Viewport height")
	fs.StringVar(&cfg.AssetsDir, "assets", cfg.AssetsDir, "Directory holding the screen AI component packages")
	fs.StringVar(&cfg.ChromePath, "chrome", cfg.ChromePath, "Browser binary; located automatically when empty")
	fs.StringVar(&cfg.TempDir, "tmp", cfg.TempDir, "Parent directory of per-session browser profiles")
	fs.StringVar(&cfg.CacheDir, "cache.dir", cfg.CacheDir, "Result cache directory; empty disables caching")
	fs.DurationVar(&cfg.CacheMaxAge, "cache.maxAge", cfg.CacheMaxAge, "Max age for cached results (e.g. 24h); 0 keeps them forever")
	fs.BoolVar(&cfg.CacheClear, "cache.clear", cfg.CacheClear, "Clear the cache directory at startup")
	fs.BoolVar(&cfg.CacheStrictPerms, "cache.strictPerms", cfg.CacheStrictPerms, "Restrict cache permissions (0700 dirs, 0600 files)")
	fs.IntVar(&cfg.MaxSessions, "max.sessions", cfg.MaxSessions, "Maximum concurrent browser sessions; 0 is unlimited")
	fs.StringVar(&cfg.MaintenanceSchedule, "maintenance", cfg.MaintenanceSchedule, "Cron schedule for cache purge and profile sweep while serving")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return app.Config{}, false, err
	}
	if showVersion {
		return cfg, true, nil
	}
	if serveAddr != "" {
		cfg.Serve = true
		cfg.ListenAddr = serveAddr
	}
	// a bare positional argument is accepted as the URL
	if cfg.URL == "" && fs.NArg() == 1 {
		cfg.URL = fs.Arg(0)
	}
	if err := app.ValidateConfig(cfg); err != nil {
		return app.Config{}, false, err
	}
	return cfg, false, nil
}

func run(ctx context.Context, cfg app.Config) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	if !cfg.Serve && cfg.MCPAddr == "" {
		return a.Run(ctx)
	}
	return serve(ctx, a, cfg)
}

// serve runs the HTTP API and/or the MCP server until ctx is done.
func serve(ctx context.Context, a *app.App, cfg app.Config) error {
	if err := a.StartMaintenance(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	running := 0
	if cfg.Serve {
		running++
		srv := server.New(cfg.ListenAddr, a, app.BuildVersion)
		go func() { errCh <- srv.ListenAndServe(ctx) }()
	}
	if cfg.MCPAddr != "" {
		running++
		m := mcpserver.New(cfg.MCPAddr, a, app.BuildVersion)
		go func() {
			err := m.Start()
			if errors.Is(err, http.ErrServerClosed) {
				err = nil
			}
			errCh <- err
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
			defer done()
			if err := m.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("mcp shutdown")
			}
		}()
	}

	var first error
	for i := 0; i < running; i++ {
		if err := <-errCh; err != nil && first == nil {
			first = err
			cancel()
		}
		if i == 0 {
			// one listener stopping brings the other down too
			cancel()
		}
	}
	return first
}

// lookupFlag returns the value of -name or --name in args, or "".
func lookupFlag(args []string, name string) string {
	v, _ := lookupFlagSet(args, name)
	return v
}

func lookupFlagSet(args []string, name string) (string, bool) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			break
		}
		trimmed := strings.TrimLeft(a, "-")
		if trimmed == a || len(a)-len(trimmed) > 2 {
			continue
		}
		if k, v, ok := strings.Cut(trimmed, "="); ok {
			if k == name {
				return v, true
			}
			continue
		}
		if trimmed == name && i+1 < len(args) {
			return args[i+1], true
		}
	}
	return "", false
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
