package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

// closeTimeout bounds the polite Browser.close before the process is killed.
const closeTimeout = 5 * time.Second

// RodLauncher launches Chrome through go-rod's launcher and connects over CDP.
type RodLauncher struct{}

// Launch starts one browser process configured by opts.
func (RodLauncher) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	l := launcher.New().Context(ctx)
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}
	if opts.UserDataDir != "" {
		l = l.UserDataDir(opts.UserDataDir)
	}
	if opts.Headless {
		l = l.Set(flags.Headless, "new")
	} else {
		l = l.Headless(false)
	}
	// the reading-mode flow needs the initial window and its single page
	l = l.Delete(flags.Flag("no-startup-window"))
	for name, values := range opts.Flags {
		l = l.Set(flags.Flag(name), values...)
	}
	if opts.StartURL != "" {
		l = l.Set(flags.Arguments, opts.StartURL)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	log.Debug().Str("bin", opts.Bin).Str("profile", opts.UserDataDir).Bool("headless", opts.Headless).Msg("browser launched")
	return &rodBrowser{browser: b, launcher: l}, nil
}

type rodBrowser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	once     sync.Once
	closeErr error
}

func (b *rodBrowser) Pages(ctx context.Context) ([]Page, error) {
	ps, err := b.browser.Context(ctx).Pages()
	if err != nil {
		return nil, err
	}
	out := make([]Page, 0, len(ps))
	for _, p := range ps {
		out = append(out, &rodPage{page: p})
	}
	return out, nil
}

func (b *rodBrowser) Targets(ctx context.Context) ([]Target, error) {
	res, err := proto.TargetGetTargets{}.Call(b.browser.Context(ctx))
	if err != nil {
		return nil, err
	}
	out := make([]Target, 0, len(res.TargetInfos))
	for _, ti := range res.TargetInfos {
		out = append(out, Target{ID: string(ti.TargetID), Type: string(ti.Type), URL: ti.URL})
	}
	return out, nil
}

func (b *rodBrowser) PageForTarget(ctx context.Context, id string) (Page, error) {
	p, err := b.browser.Context(ctx).PageFromTarget(proto.TargetTargetID(id))
	if err != nil {
		return nil, err
	}
	return &rodPage{page: p}, nil
}

func (b *rodBrowser) NewPage(ctx context.Context) (Page, error) {
	p, err := b.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, err
	}
	return &rodPage{page: p}, nil
}

func (b *rodBrowser) UserAgent(ctx context.Context) (string, error) {
	res, err := proto.BrowserGetVersion{}.Call(b.browser.Context(ctx))
	if err != nil {
		return "", err
	}
	return res.UserAgent, nil
}

func (b *rodBrowser) DenyDownloads(ctx context.Context) error {
	return proto.BrowserSetDownloadBehavior{
		Behavior:      proto.BrowserSetDownloadBehaviorBehaviorDeny,
		EventsEnabled: true,
	}.Call(b.browser.Context(ctx))
}

func (b *rodBrowser) Close() error {
	b.once.Do(func() {
		b.closeErr = b.browser.Timeout(closeTimeout).Close()
		b.launcher.Kill()
	})
	return b.closeErr
}

type rodPage struct {
	page *rod.Page
}

func lifecycleEvent(until WaitUntil) proto.PageLifecycleEventName {
	switch until {
	case WaitDOMContentLoaded:
		return proto.PageLifecycleEventNameDOMContentLoaded
	case WaitNetworkIdle0:
		return proto.PageLifecycleEventNameNetworkIdle
	case WaitNetworkIdle2:
		return proto.PageLifecycleEventNameNetworkAlmostIdle
	default:
		return proto.PageLifecycleEventNameLoad
	}
}

func (p *rodPage) Navigate(ctx context.Context, url string, until WaitUntil) error {
	page := p.page.Context(ctx)
	wait := page.WaitNavigation(lifecycleEvent(until))
	if err := page.Navigate(url); err != nil {
		return err
	}
	wait()
	return ctx.Err()
}

func (p *rodPage) NavigateRaw(ctx context.Context, url string) error {
	_, err := proto.PageNavigate{URL: url}.Call(p.page.Context(ctx))
	return err
}

func (p *rodPage) Evaluate(ctx context.Context, js string, out any) error {
	res, err := p.page.Context(ctx).Evaluate(rod.Eval(js))
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(res.Value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (p *rodPage) Query(ctx context.Context, selector string) (bool, bool, error) {
	has, el, err := p.page.Context(ctx).Has(selector)
	if err != nil || !has {
		return has, false, err
	}
	visible, err := el.Visible()
	if err != nil {
		return true, false, err
	}
	return true, visible, nil
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *rodPage) SetUserAgent(ctx context.Context, ua string) error {
	return p.page.Context(ctx).SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua})
}

func (p *rodPage) SetViewport(ctx context.Context, width, height int) error {
	return p.page.Context(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	})
}

func (p *rodPage) Activate(ctx context.Context) error {
	_, err := p.page.Context(ctx).Activate()
	return err
}

// WatchNetwork streams request signals for the page until ctx ends.
func (p *rodPage) WatchNetwork(ctx context.Context) (<-chan NetworkEvent, error) {
	page := p.page.Context(ctx)
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return nil, err
	}
	out := make(chan NetworkEvent, 64)
	emit := func(evs []NetworkEvent) {
		for _, ev := range evs {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
	// handlers run sequentially on one goroutine
	tr := newNetworkTracker()
	wait := page.EachEvent(
		func(e *proto.NetworkRequestWillBeSent) { emit(tr.requestWillBeSent(e)) },
		func(e *proto.NetworkResponseReceived) { tr.responseReceived(e) },
		func(e *proto.NetworkLoadingFinished) { emit(tr.loadingFinished(e)) },
		func(e *proto.NetworkLoadingFailed) { emit(tr.loadingFailed(e)) },
	)
	go func() {
		wait()
		close(out)
	}()
	return out, nil
}
