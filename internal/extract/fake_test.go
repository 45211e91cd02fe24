package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/hyperifyio/contentxtractor/internal/browser"
	"github.com/hyperifyio/contentxtractor/internal/crx"
)

type query struct{ found, visible bool }

type fakePage struct {
	mu sync.Mutex

	html        string
	links       []string
	queries     map[string]query
	events      []browser.NetworkEvent
	navigateErr error
	blockNav    bool

	ua        string
	width     int
	height    int
	rawURLs   []string
	navURLs   []string
	evaluated []string
	queried   []string
	activated int
	watch     chan browser.NetworkEvent
}

func (p *fakePage) Navigate(ctx context.Context, url string, until browser.WaitUntil) error {
	p.mu.Lock()
	p.navURLs = append(p.navURLs, url)
	watch, events, block, navErr := p.watch, p.events, p.blockNav, p.navigateErr
	p.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if watch != nil {
		for _, ev := range events {
			watch <- ev
		}
		close(watch)
	}
	return navErr
}

func (p *fakePage) NavigateRaw(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rawURLs = append(p.rawURLs, url)
	return nil
}

func (p *fakePage) Evaluate(ctx context.Context, js string, out any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evaluated = append(p.evaluated, js)
	if dst, ok := out.(*[]string); ok && strings.Contains(js, "querySelectorAll('a')") {
		*dst = append([]string(nil), p.links...)
	}
	return nil
}

func (p *fakePage) Query(ctx context.Context, selector string) (bool, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queried = append(p.queried, selector)
	q := p.queries[selector]
	return q.found, q.visible, nil
}

func (p *fakePage) HTML(ctx context.Context) (string, error) { return p.html, nil }

func (p *fakePage) SetUserAgent(ctx context.Context, ua string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ua = ua
	return nil
}

func (p *fakePage) SetViewport(ctx context.Context, width, height int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.width, p.height = width, height
	return nil
}

func (p *fakePage) Activate(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activated++
	return nil
}

func (p *fakePage) WatchNetwork(ctx context.Context) (<-chan browser.NetworkEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.watch = make(chan browser.NetworkEvent, len(p.events)+1)
	return p.watch, nil
}

func (p *fakePage) queriedSelector(sel string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, q := range p.queried {
		if q == sel {
			return true
		}
	}
	return false
}

type fakeBrowser struct {
	pages    []browser.Page
	targets  []browser.Target
	panel    *fakePage
	ua       string
	newPages int32
	closed   int32
	denied   int32
}

func (b *fakeBrowser) Pages(ctx context.Context) ([]browser.Page, error) { return b.pages, nil }

func (b *fakeBrowser) Targets(ctx context.Context) ([]browser.Target, error) { return b.targets, nil }

func (b *fakeBrowser) PageForTarget(ctx context.Context, id string) (browser.Page, error) {
	return b.panel, nil
}

func (b *fakeBrowser) NewPage(ctx context.Context) (browser.Page, error) {
	atomic.AddInt32(&b.newPages, 1)
	return &fakePage{}, nil
}

func (b *fakeBrowser) UserAgent(ctx context.Context) (string, error) { return b.ua, nil }

func (b *fakeBrowser) DenyDownloads(ctx context.Context) error {
	atomic.AddInt32(&b.denied, 1)
	return nil
}

func (b *fakeBrowser) Close() error {
	atomic.AddInt32(&b.closed, 1)
	return nil
}

type fakeLauncher struct {
	browser  *fakeBrowser
	err      error
	launched int32
	opts     browser.LaunchOptions
}

func (l *fakeLauncher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Browser, error) {
	atomic.AddInt32(&l.launched, 1)
	l.opts = opts
	if l.err != nil {
		return nil, l.err
	}
	return l.browser, nil
}

// newScene wires a browser whose default page serves the given primary
// response and whose reading-mode panel is ready.
func newScene(url string, status int, contentType string) (*fakeLauncher, *fakePage, *fakePage) {
	page := &fakePage{
		html:  `<html><body><h1>Raw</h1><p>Page body</p><a href="https://example.com/a">a</a></body></html>`,
		links: []string{"https://example.com/a", "https://example.com/b"},
		events: []browser.NetworkEvent{
			{Kind: browser.RequestIssued, URL: url},
			{Kind: browser.RequestIssued, URL: url + "style.css"},
			{Kind: browser.RequestFinished, URL: url + "style.css", Status: 200, Headers: map[string]string{"content-type": "text/css"}},
			{Kind: browser.RequestFinished, URL: url, Status: status, Headers: map[string]string{"Content-Type": contentType}},
		},
	}
	panel := &fakePage{
		html: `<html><body><div id="container-parent"><h1>Distilled</h1><p>Clean text</p></div><cr-toast>x</cr-toast></body></html>`,
		queries: map[string]query{
			"read-anything-toolbar": {found: true, visible: true},
			"#container-parent":     {found: true, visible: true},
		},
	}
	b := &fakeBrowser{
		pages:   []browser.Page{page},
		targets: []browser.Target{{ID: "T1", Type: "page", URL: ReadingModeURL}, {ID: "T0", Type: "page", URL: "data:text/plain,"}},
		panel:   panel,
		ua:      "Mozilla/5.0 (X11; Linux x86_64) HeadlessChrome/138.0.0.0 Safari/537.36",
	}
	return &fakeLauncher{browser: b}, page, panel
}

// writeScreenAI puts a minimal linux component package into dir.
func writeScreenAI(t *testing.T, dir string, magic string) {
	t.Helper()
	var zbuf bytes.Buffer
	zw := zip.NewWriter(&zbuf)
	w, err := zw.Create("manifest.json")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	if _, err := w.Write([]byte(`{"name":"screen_ai"}`)); err != nil {
		t.Fatalf("zip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}

	var buf bytes.Buffer
	buf.WriteString(magic)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(3))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(4))
	buf.Write([]byte{1, 2, 3, 4})
	buf.Write(zbuf.Bytes())

	name := crx.ComponentID + "_138.0.1_linux_0001.crx3"
	if err := os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write crx: %v", err)
	}
}
