// Package extract drives a browser through its reading mode to turn a web
// page into Markdown.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/contentxtractor/internal/browser"
	"github.com/hyperifyio/contentxtractor/internal/crx"
	"github.com/hyperifyio/contentxtractor/internal/intercept"
	"github.com/hyperifyio/contentxtractor/internal/markdown"
	"github.com/hyperifyio/contentxtractor/internal/readingmode"
	"github.com/hyperifyio/contentxtractor/internal/reaper"
)

const (
	// ReadingModeURL is the side panel hosting the distilled document.
	ReadingModeURL = "chrome-untrusted://read-anything-side-panel.top-chrome/"
	// ProfileDirPrefix names the per-session browser profile directories.
	ProfileDirPrefix = "chrome_user_data_dir_"
	// StartURL is loaded by the initial tab so reading mode opens ready.
	StartURL = "data:text/plain,"

	DefaultNavigationGrace = 500 * time.Millisecond
	DefaultOutcomeTimeout  = 30 * time.Second
	DefaultTargetWait      = 5 * time.Second
	DefaultPDFSettle       = 2 * time.Second

	targetPollInterval = 100 * time.Millisecond
)

const (
	disableLinksJS = `() => document.querySelector('read-anything-toolbar').shadowRoot.querySelector('#link-toggle-button').click()`
	linksJS        = `() => Array.from(document.querySelectorAll('a')).map((a) => a.href).filter((href) => href)`
)

// LaunchFlags returns the browser switches a session needs. The map is fresh
// on every call.
func LaunchFlags() map[string][]string {
	return map[string][]string{
		"disable-web-security": nil,
		"remote-allow-origins": {"*"},
		"disable-gpu":          nil,
		"no-sandbox":           nil,
		"enable-features":      {"ReadAnything", "ReadAnythingWithScreen2x", "ReadAnythingWebUIToolbar"},
		// one shared reading-mode panel instead of one per tab
		"disable-features": {"ReadAnythingLocalSidePanel"},
	}
}

// Extractor runs one browser session per Extract call. The zero value is not
// usable; construct with New.
type Extractor struct {
	Launcher browser.Launcher
	Locator  browser.Locator
	// AssetsDir holds the screen AI component packages.
	AssetsDir string
	// TempDir is the parent of profile directories; empty means os.TempDir.
	TempDir string
	GOOS    string

	Reaper    *reaper.Reaper
	Waiter    *readingmode.Waiter
	Converter *markdown.Converter
	Logger    zerolog.Logger

	NavigationGrace time.Duration
	OutcomeTimeout  time.Duration
	TargetWait      time.Duration
	PDFSettle       time.Duration
	ToolbarTimeout  time.Duration
}

func New(l browser.Launcher, loc browser.Locator, assetsDir string) *Extractor {
	return &Extractor{
		Launcher:        l,
		Locator:         loc,
		AssetsDir:       assetsDir,
		GOOS:            runtime.GOOS,
		Reaper:          reaper.New(),
		Waiter:          readingmode.New(),
		Converter:       markdown.New(),
		Logger:          log.Logger,
		NavigationGrace: DefaultNavigationGrace,
		OutcomeTimeout:  DefaultOutcomeTimeout,
		TargetWait:      DefaultTargetWait,
		PDFSettle:       DefaultPDFSettle,
		ToolbarTimeout:  readingmode.DefaultToolbarTimeout,
	}
}

// session owns one browser process for the duration of a request.
type session struct {
	browser browser.Browser
	once    sync.Once
	logger  zerolog.Logger
}

func (s *session) close() {
	s.once.Do(func() {
		if err := s.browser.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("browser close")
		}
	})
}

// Extract converts the page at req.URL into Markdown. Failures are *Error
// values except request validation, which wraps ErrInvalidRequest. A page
// that answers with a non-200 status or an unsupported content type yields a
// Result with Success false and no error.
func (e *Extractor) Extract(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	logger := e.Logger.With().Str("url", req.URL).Logger()

	platform, err := crx.PlatformFor(e.GOOS)
	if err != nil {
		return Result{}, newError(KindUnsupportedPlatform, "screen ai platform", err)
	}
	bin, err := e.Locator.Path()
	if err != nil {
		return Result{}, classify(ctx, "locate browser", err)
	}
	pkg, err := crx.Select(e.AssetsDir, platform)
	if err != nil {
		return Result{}, classify(ctx, "select screen ai package", err)
	}

	profile, err := os.MkdirTemp(e.TempDir, ProfileDirPrefix)
	if err != nil {
		return Result{}, newError(KindUnexpected, "create profile dir", err)
	}
	defer e.Reaper.Schedule(profile)

	if _, err := crx.Install(pkg, profile); err != nil {
		return Result{}, classify(ctx, "install screen ai", err)
	}

	b, err := e.Launcher.Launch(ctx, browser.LaunchOptions{
		Bin:         bin,
		Headless:    req.Headless,
		UserDataDir: profile,
		Flags:       LaunchFlags(),
		StartURL:    StartURL,
	})
	if err != nil {
		return Result{}, classify(ctx, "launch browser", err)
	}
	s := &session{browser: b, logger: logger}
	defer s.close()
	stop := context.AfterFunc(ctx, s.close)
	defer stop()

	start := time.Now()
	res, err := e.run(ctx, b, req, logger)
	if err != nil {
		err = classify(ctx, "extract", err)
		logger.Debug().Err(err).Str("kind", string(KindOf(err))).Dur("elapsed", time.Since(start)).Msg("extraction failed")
		return Result{}, err
	}
	logger.Info().
		Bool("success", res.Success).
		Str("reason", string(res.Reason)).
		Int("status", res.RequestResult.StatusCode).
		Str("content_type", res.RequestResult.ContentType).
		Bool("reading_mode", res.ExtractedFromReadingMode).
		Dur("elapsed", time.Since(start)).
		Msg("extracted")
	return res, nil
}

func (e *Extractor) run(ctx context.Context, b browser.Browser, req Request, logger zerolog.Logger) (Result, error) {
	if err := b.DenyDownloads(ctx); err != nil {
		return Result{}, fmt.Errorf("deny downloads: %w", err)
	}

	pages, err := b.Pages(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list pages: %w", err)
	}
	if len(pages) != 1 {
		return Result{}, newError(KindTargetCountMismatch, fmt.Sprintf("expected 1 initial page, found %d", len(pages)), nil)
	}
	page := pages[0]

	ua, err := b.UserAgent(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("user agent: %w", err)
	}
	if err := page.SetUserAgent(ctx, strings.ReplaceAll(ua, "Headless", "")); err != nil {
		return Result{}, fmt.Errorf("set user agent: %w", err)
	}
	if err := page.SetViewport(ctx, req.Viewport.Width, req.Viewport.Height); err != nil {
		return Result{}, fmt.Errorf("set viewport: %w", err)
	}

	// the panel navigation reports an aborted load; that is its normal result
	if err := page.NavigateRaw(ctx, ReadingModeURL); err != nil {
		return Result{}, fmt.Errorf("open reading mode: %w", err)
	}
	panel, err := e.readingModePanel(ctx, b)
	if err != nil {
		return Result{}, err
	}

	if req.DisableLinks {
		if err := e.Waiter.WaitPresent(ctx, panel, readingmode.ToolbarSelector, e.ToolbarTimeout); err != nil {
			return Result{}, fmt.Errorf("reading mode toolbar: %w", err)
		}
		if err := panel.Evaluate(ctx, disableLinksJS, nil); err != nil {
			return Result{}, fmt.Errorf("disable links: %w", err)
		}
	}

	outcome, err := e.navigate(ctx, page, req, logger)
	if err != nil {
		return Result{}, err
	}

	res := Result{RequestResult: outcome, URLs: []string{}, Reason: reasonFor(outcome)}
	if res.Reason != ReasonOK {
		if req.ReturnRawHTML {
			if res.RawHTML, err = page.HTML(ctx); err != nil {
				return Result{}, fmt.Errorf("raw html: %w", err)
			}
		}
		return res, nil
	}

	var urls []string
	if err := page.Evaluate(ctx, linksJS, &urls); err != nil {
		return Result{}, fmt.Errorf("collect links: %w", err)
	}
	if urls != nil {
		res.URLs = urls
	}

	// PDFs only render into the panel after a tab switch
	if IsPDF(outcome.ContentType) {
		if _, err := b.NewPage(ctx); err != nil {
			return Result{}, fmt.Errorf("pdf scratch page: %w", err)
		}
		if err := sleep(ctx, e.PDFSettle); err != nil {
			return Result{}, err
		}
		if err := page.Activate(ctx); err != nil {
			return Result{}, fmt.Errorf("activate page: %w", err)
		}
	}

	ready, err := e.Waiter.Wait(ctx, panel, req.ReadingModeTimeout)
	if err != nil {
		return Result{}, err
	}
	source := page
	if ready {
		source = panel
	}
	doc, err := source.HTML(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("document html: %w", err)
	}
	md, err := e.Converter.Convert(doc)
	if err != nil {
		return Result{}, fmt.Errorf("convert markdown: %w", err)
	}
	if req.ReturnRawHTML {
		if res.RawHTML, err = page.HTML(ctx); err != nil {
			return Result{}, fmt.Errorf("raw html: %w", err)
		}
	}

	res.Success = true
	res.Markdown = md
	res.ExtractedFromReadingMode = ready
	return res, nil
}

// navigate loads req.URL on page and resolves its primary request. A failed
// navigation still succeeds when the primary response arrived, as with a
// denied download.
func (e *Extractor) navigate(ctx context.Context, page browser.Page, req Request, logger zerolog.Logger) (intercept.Outcome, error) {
	tracker, err := intercept.Track(ctx, page)
	if err != nil {
		return intercept.Outcome{}, fmt.Errorf("watch network: %w", err)
	}
	navErr := page.Navigate(ctx, req.URL, req.WaitUntil)
	if navErr != nil {
		if ctx.Err() != nil {
			return intercept.Outcome{}, navErr
		}
		outcome, err := tracker.WaitFor(ctx, e.NavigationGrace)
		if err != nil {
			return intercept.Outcome{}, newError(KindNavigation, "navigate to "+req.URL, navErr)
		}
		logger.Debug().Err(navErr).Int("status", outcome.StatusCode).Msg("navigation error after primary response")
		return outcome, nil
	}
	outcome, err := tracker.WaitFor(ctx, e.OutcomeTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return intercept.Outcome{}, err
		}
		return intercept.Outcome{}, newError(KindNavigation, "no response observed for "+req.URL, err)
	}
	return outcome, nil
}

// readingModePanel attaches to the single reading-mode target, giving it a
// short while to appear.
func (e *Extractor) readingModePanel(ctx context.Context, b browser.Browser) (browser.Page, error) {
	deadline := time.Now().Add(e.TargetWait)
	for {
		targets, err := b.Targets(ctx)
		if err != nil {
			return nil, fmt.Errorf("list targets: %w", err)
		}
		var matches []browser.Target
		for _, t := range targets {
			if t.URL == ReadingModeURL {
				matches = append(matches, t)
			}
		}
		if len(matches) == 1 {
			p, err := b.PageForTarget(ctx, matches[0].ID)
			if err != nil {
				return nil, fmt.Errorf("attach reading mode: %w", err)
			}
			return p, nil
		}
		if len(matches) > 1 || !time.Now().Before(deadline) {
			return nil, newError(KindTargetCountMismatch,
				fmt.Sprintf("expected 1 reading mode target, found %d", len(matches)), nil)
		}
		if err := sleep(ctx, targetPollInterval); err != nil {
			return nil, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsCanceled reports whether err came from a canceled or expired context.
func IsCanceled(err error) bool {
	return IsKind(err, KindCanceled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
