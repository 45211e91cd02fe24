// Package intercept resolves the outcome of a page's primary request from its
// network event stream.
package intercept

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hyperifyio/contentxtractor/internal/browser"
)

// ErrNoOutcome is returned when the event stream ends before the primary
// request completes.
var ErrNoOutcome = errors.New("intercept: event stream ended without a primary response")

// Outcome describes the primary request as observed on the wire.
type Outcome struct {
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Redirected  bool   `json:"redirected"`
	StatusCode  int    `json:"statusCode"`
}

// Source is the part of a page the tracker needs.
type Source interface {
	WatchNetwork(ctx context.Context) (<-chan browser.NetworkEvent, error)
}

// Tracker pairs the first issued request with its completion. The URL and the
// outcome are single-shot futures; each is written once before its channel is
// closed and never mutated afterwards.
type Tracker struct {
	urlReady chan struct{}
	url      string

	outcomeReady chan struct{}
	outcome      Outcome

	// closed when the event stream ends
	ended chan struct{}
}

// Track subscribes to src. It must be called before the navigation whose
// primary request should be tracked.
func Track(ctx context.Context, src Source) (*Tracker, error) {
	events, err := src.WatchNetwork(ctx)
	if err != nil {
		return nil, err
	}
	t := &Tracker{
		urlReady:     make(chan struct{}),
		outcomeReady: make(chan struct{}),
		ended:        make(chan struct{}),
	}
	go t.run(events)
	return t, nil
}

func (t *Tracker) run(events <-chan browser.NetworkEvent) {
	defer close(t.ended)
	var early []browser.NetworkEvent
	fixed, resolved := false, false
	for ev := range events {
		if resolved {
			continue
		}
		switch ev.Kind {
		case browser.RequestIssued:
			if fixed {
				continue
			}
			t.url = ev.URL
			close(t.urlReady)
			fixed = true
			for _, held := range early {
				if held.URL == t.url {
					t.resolve(held)
					resolved = true
					break
				}
			}
			early = nil
		case browser.RequestFinished:
			if !fixed {
				early = append(early, ev)
				continue
			}
			if ev.URL == t.url {
				t.resolve(ev)
				resolved = true
			}
		}
	}
}

func (t *Tracker) resolve(ev browser.NetworkEvent) {
	t.outcome = outcomeOf(ev)
	close(t.outcomeReady)
}

func outcomeOf(ev browser.NetworkEvent) Outcome {
	o := Outcome{
		URL:         ev.URL,
		ContentType: Header(ev.Headers, "Content-Type"),
		Redirected:  ev.Redirected,
		StatusCode:  ev.Status,
	}
	if ev.Status != 200 {
		if loc := Header(ev.Headers, "Location"); loc != "" {
			o.URL = loc
		}
	}
	return o
}

// URL returns the tracked request URL once it is fixed.
func (t *Tracker) URL() (string, bool) {
	select {
	case <-t.urlReady:
		return t.url, true
	default:
		return "", false
	}
}

// Wait blocks until the primary request completes, the stream ends or ctx is done.
func (t *Tracker) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.outcomeReady:
		return t.outcome, nil
	default:
	}
	select {
	case <-t.outcomeReady:
		return t.outcome, nil
	case <-t.ended:
		// run closes outcomeReady before ended when it resolves
		select {
		case <-t.outcomeReady:
			return t.outcome, nil
		default:
			return Outcome{}, ErrNoOutcome
		}
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// WaitFor is Wait bounded by d.
func (t *Tracker) WaitFor(ctx context.Context, d time.Duration) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return t.Wait(ctx)
}

// Header looks up name case-insensitively.
func Header(h map[string]string, name string) string {
	if v, ok := h[name]; ok {
		return v
	}
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
