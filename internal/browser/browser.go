// Package browser defines the remote-control capability the extractor drives
// (launch, navigate, evaluate, query, enumerate targets, dispose) and a go-rod
// implementation of it. Everything above this package depends only on the
// interfaces, so tests substitute in-memory fakes.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedPlatform is returned when no locator exists for the OS.
var ErrUnsupportedPlatform = errors.New("browser: unsupported platform")

// ErrNotFound is returned when no browser executable could be located.
var ErrNotFound = errors.New("browser: executable not found")

// LaunchOptions configures a single browser process.
type LaunchOptions struct {
	Bin         string
	Headless    bool
	UserDataDir string
	// Flags are command-line switches without the leading dashes. A nil
	// value slice means a bare switch.
	Flags map[string][]string
	// StartURL is the page the browser opens with.
	StartURL string
}

// Launcher starts browser processes.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

// Target is an addressable browser surface such as a tab or a side panel.
type Target struct {
	ID   string
	Type string
	URL  string
}

// Browser is a running browser process reachable over its control channel.
type Browser interface {
	Pages(ctx context.Context) ([]Page, error)
	Targets(ctx context.Context) ([]Target, error)
	PageForTarget(ctx context.Context, id string) (Page, error)
	NewPage(ctx context.Context) (Page, error)
	UserAgent(ctx context.Context) (string, error)
	DenyDownloads(ctx context.Context) error
	// Close disposes the process. It is safe to call more than once.
	Close() error
}

// Page is a single page target.
type Page interface {
	// Navigate loads url and waits for the lifecycle event selected by until.
	Navigate(ctx context.Context, url string, until WaitUntil) error
	// NavigateRaw issues the navigation command and ignores the navigation's
	// own error text, for internal pages that report an aborted load.
	NavigateRaw(ctx context.Context, url string) error
	// Evaluate runs a JavaScript function expression and decodes its JSON
	// result into out, which may be nil.
	Evaluate(ctx context.Context, js string, out any) error
	// Query reports whether selector matches and whether the match is visible.
	Query(ctx context.Context, selector string) (found, visible bool, err error)
	HTML(ctx context.Context) (string, error)
	SetUserAgent(ctx context.Context, ua string) error
	SetViewport(ctx context.Context, width, height int) error
	Activate(ctx context.Context) error
	// WatchNetwork streams request lifecycle events until ctx ends.
	WatchNetwork(ctx context.Context) (<-chan NetworkEvent, error)
}

// EventKind distinguishes the two request signals.
type EventKind int

const (
	RequestIssued EventKind = iota + 1
	RequestFinished
)

func (k EventKind) String() string {
	switch k {
	case RequestIssued:
		return "issued"
	case RequestFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// NetworkEvent is one request signal. Status, Headers and Redirected are only
// set for RequestFinished.
type NetworkEvent struct {
	Kind       EventKind
	RequestID  string
	URL        string
	Status     int
	Headers    map[string]string
	Redirected bool
}

// WaitUntil selects when a navigation counts as complete.
type WaitUntil string

const (
	WaitLoad             WaitUntil = "load"
	WaitDOMContentLoaded WaitUntil = "domcontentloaded"
	WaitNetworkIdle0     WaitUntil = "networkidle0"
	WaitNetworkIdle2     WaitUntil = "networkidle2"
)

// WaitUntilValues lists the accepted policies in declaration order.
func WaitUntilValues() []WaitUntil {
	return []WaitUntil{WaitLoad, WaitDOMContentLoaded, WaitNetworkIdle0, WaitNetworkIdle2}
}

// ParseWaitUntil accepts a policy name case-insensitively. Empty means load.
func ParseWaitUntil(s string) (WaitUntil, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return WaitLoad, nil
	}
	for _, v := range WaitUntilValues() {
		if strings.EqualFold(s, string(v)) {
			return v, nil
		}
	}
	names := make([]string, 0, 4)
	for _, v := range WaitUntilValues() {
		names = append(names, string(v))
	}
	return "", fmt.Errorf("invalid waitUntil %q (want one of %s)", s, strings.Join(names, ", "))
}

// UnmarshalText lets JSON and flag decoding use the case-insensitive names.
func (w *WaitUntil) UnmarshalText(b []byte) error {
	v, err := ParseWaitUntil(string(b))
	if err != nil {
		return err
	}
	*w = v
	return nil
}

func (w WaitUntil) String() string {
	if w == "" {
		return string(WaitLoad)
	}
	return string(w)
}
