package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/contentxtractor/internal/browser"
	"github.com/hyperifyio/contentxtractor/internal/cache"
	"github.com/hyperifyio/contentxtractor/internal/extract"
	"github.com/hyperifyio/contentxtractor/internal/reaper"
)

// Extractor turns one request into a result. *extract.Extractor satisfies it.
type Extractor interface {
	Extract(ctx context.Context, req extract.Request) (extract.Result, error)
}

// ErrNotExtracted is returned by Run when the page answered but the result
// was not successful. The output is still written so callers can inspect it.
var ErrNotExtracted = errors.New("page not extracted")

type App struct {
	cfg       Config
	extractor Extractor
	cache     *cache.ResultCache

	// limiter bounds concurrent browser sessions when MaxSessions > 0
	limiter chan struct{}

	cron      *cronlib.Cron
	closeOnce sync.Once

	stdout io.Writer
}

// New wires the production extractor: a located browser binary driven
// through go-rod.
func New(ctx context.Context, cfg Config) (*App, error) {
	var loc browser.Locator
	if strings.TrimSpace(cfg.ChromePath) != "" {
		loc = browser.Fixed(cfg.ChromePath)
	} else {
		l, err := browser.NewLocator(runtime.GOOS)
		if err != nil {
			return nil, fmt.Errorf("browser locator: %w", err)
		}
		loc = l
	}
	ex := extract.New(browser.RodLauncher{}, loc, cfg.AssetsDir)
	ex.TempDir = cfg.TempDir
	ex.Logger = log.Logger
	if _, err := os.Stat(cfg.AssetsDir); err != nil {
		log.Warn().Err(err).Str("dir", cfg.AssetsDir).Msg("screen ai assets not readable; extractions will fail")
	}
	return NewWithExtractor(ctx, cfg, ex)
}

// NewWithExtractor builds an App around any Extractor. Cache invalidation
// controls run here, once, before the first request.
func NewWithExtractor(_ context.Context, cfg Config, ex Extractor) (*App, error) {
	if ex == nil {
		return nil, errors.New("app: nil extractor")
	}
	a := &App{cfg: cfg, extractor: ex, stdout: os.Stdout}
	if cfg.MaxSessions > 0 {
		a.limiter = make(chan struct{}, cfg.MaxSessions)
	}
	if cfg.CacheDir != "" {
		if cfg.CacheClear {
			if err := cache.ClearDir(cfg.CacheDir); err != nil {
				log.Warn().Err(err).Str("dir", cfg.CacheDir).Msg("cache clear failed")
			}
		}
		if cfg.CacheMaxAge > 0 {
			// Purge is best-effort; a stale entry is rejected on read anyway.
			if n, err := cache.PurgeByAge(cfg.CacheDir, cfg.CacheMaxAge); err != nil {
				log.Warn().Err(err).Msg("cache purge failed")
			} else if n > 0 {
				log.Info().Int("removed", n).Msg("cache purged")
			}
		}
		a.cache = &cache.ResultCache{Dir: cfg.CacheDir, StrictPerms: cfg.CacheStrictPerms}
	}
	return a, nil
}

// Config returns the configuration the App was built with.
func (a *App) Config() Config { return a.cfg }

// BaseRequest returns the request defaults from configuration. Incoming
// requests are decoded on top of it.
func (a *App) BaseRequest() extract.Request {
	req := extract.DefaultRequest()
	req.Headless = a.cfg.Headless
	req.DisableLinks = a.cfg.DisableLinks
	req.ReturnRawHTML = a.cfg.ReturnRawHTML
	if wu, err := browser.ParseWaitUntil(a.cfg.WaitUntil); err == nil {
		req.WaitUntil = wu
	}
	if a.cfg.ReadingModeTimeout > 0 {
		req.ReadingModeTimeout = a.cfg.ReadingModeTimeout
	}
	if a.cfg.ViewportWidth > 0 && a.cfg.ViewportHeight > 0 {
		req.Viewport = extract.Viewport{Width: a.cfg.ViewportWidth, Height: a.cfg.ViewportHeight}
	}
	return req
}

// Extract serves req from the result cache when possible, otherwise runs a
// browser session once a session slot is free. Only successful results are
// cached.
func (a *App) Extract(ctx context.Context, req extract.Request) (extract.Result, error) {
	if err := req.Validate(); err != nil {
		return extract.Result{}, err
	}
	key := req.CacheKey()
	if res, ok := a.cached(ctx, key); ok {
		log.Debug().Str("url", req.URL).Msg("cache hit")
		return res, nil
	}

	if err := a.acquire(ctx); err != nil {
		return extract.Result{}, err
	}
	res, err := a.extractor.Extract(ctx, req)
	a.release()
	if err != nil {
		return res, err
	}

	if a.cache != nil && res.Success {
		if b, mErr := json.Marshal(res); mErr == nil {
			if sErr := a.cache.Save(ctx, key, req.URL, b); sErr != nil {
				log.Warn().Err(sErr).Str("url", req.URL).Msg("cache save failed")
			}
		}
	}
	return res, nil
}

func (a *App) cached(ctx context.Context, key string) (extract.Result, bool) {
	if a.cache == nil {
		return extract.Result{}, false
	}
	b, ok, err := a.cache.Get(ctx, key, a.cfg.CacheMaxAge)
	if err != nil {
		log.Debug().Err(err).Msg("cache read failed")
		return extract.Result{}, false
	}
	if !ok {
		return extract.Result{}, false
	}
	var res extract.Result
	if err := json.Unmarshal(b, &res); err != nil {
		log.Debug().Err(err).Msg("cache entry undecodable")
		return extract.Result{}, false
	}
	res.Reason = extract.ReasonOK
	return res, true
}

func (a *App) acquire(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}
	select {
	case a.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return &extract.Error{Kind: extract.KindCanceled, Message: "wait for browser session", Cause: ctx.Err()}
	}
}

func (a *App) release() {
	if a.limiter == nil {
		return
	}
	select {
	case <-a.limiter:
	default:
	}
}

// StartMaintenance schedules Maintain on cfg.MaintenanceSchedule. An empty
// schedule disables it.
func (a *App) StartMaintenance() error {
	if strings.TrimSpace(a.cfg.MaintenanceSchedule) == "" {
		return nil
	}
	c := cronlib.New(cronlib.WithParser(scheduleParser))
	if _, err := c.AddFunc(a.cfg.MaintenanceSchedule, a.Maintain); err != nil {
		return fmt.Errorf("maintenance schedule %q: %w", a.cfg.MaintenanceSchedule, err)
	}
	c.Start()
	a.cron = c
	log.Info().Str("schedule", a.cfg.MaintenanceSchedule).Msg("maintenance scheduled")
	return nil
}

// Maintain purges expired cache entries and sweeps profile directories
// orphaned by a previous process.
func (a *App) Maintain() {
	if a.cfg.CacheDir != "" && a.cfg.CacheMaxAge > 0 {
		if n, err := cache.PurgeByAge(a.cfg.CacheDir, a.cfg.CacheMaxAge); err != nil {
			log.Warn().Err(err).Msg("cache purge failed")
		} else if n > 0 {
			log.Info().Int("removed", n).Msg("cache purged")
		}
	}
	root := a.cfg.TempDir
	if root == "" {
		root = os.TempDir()
	}
	maxAge := a.cfg.OrphanMaxAge
	if maxAge <= 0 {
		maxAge = DefaultOrphanMaxAge
	}
	n, err := reaper.SweepOrphans(root, extract.ProfileDirPrefix, maxAge)
	if err != nil {
		log.Warn().Err(err).Str("dir", root).Msg("orphan sweep failed")
		return
	}
	if n > 0 {
		log.Info().Int("removed", n).Str("dir", root).Msg("orphaned profiles removed")
	}
}

// Close stops the maintenance scheduler and waits for a running job.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		if a.cron != nil {
			<-a.cron.Stop().Done()
		}
	})
}

// Run performs the one-shot extraction of cfg.URL and writes Markdown, or the
// result JSON, to cfg.OutputPath or stdout.
func (a *App) Run(ctx context.Context) error {
	req := a.BaseRequest()
	req.URL = strings.TrimSpace(a.cfg.URL)

	start := time.Now()
	res, err := a.Extract(ctx, req)
	if err != nil {
		return err
	}

	var out []byte
	if a.cfg.JSONOutput {
		out, err = json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		out = append(out, '\n')
	} else {
		out = []byte(res.Markdown)
		if len(out) > 0 && out[len(out)-1] != '\n' {
			out = append(out, '\n')
		}
	}
	if err := a.write(out); err != nil {
		return err
	}

	if a.cfg.OutputPDFPath != "" && res.Success {
		if err := writeMarkdownPDF(res.Markdown, a.cfg.OutputPDFPath); err != nil {
			return fmt.Errorf("write pdf: %w", err)
		}
		log.Info().Str("out", a.cfg.OutputPDFPath).Msg("wrote pdf")
	}

	log.Info().
		Str("url", req.URL).
		Bool("success", res.Success).
		Int("status", res.RequestResult.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("done")
	if !res.Success {
		return fmt.Errorf("%w: status %d, content type %q", ErrNotExtracted, res.RequestResult.StatusCode, res.RequestResult.ContentType)
	}
	return nil
}

func (a *App) write(b []byte) error {
	if a.cfg.OutputPath == "" {
		_, err := a.stdout.Write(b)
		return err
	}
	if dir := filepath.Dir(a.cfg.OutputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(a.cfg.OutputPath, b, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	log.Info().Str("out", a.cfg.OutputPath).Msg("wrote output")
	return nil
}
