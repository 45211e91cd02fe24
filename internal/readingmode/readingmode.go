// Package readingmode waits for the browser's reading-mode surface to finish
// distilling the active page.
package readingmode

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// ContainerSelector becomes visible once distilled content is rendered.
	ContainerSelector = "#container-parent"
	// ToolbarSelector is the reading-mode toolbar host element.
	ToolbarSelector = "read-anything-toolbar"

	DefaultInterval       = 100 * time.Millisecond
	DefaultToolbarTimeout = 30 * time.Second
)

// Querier is the part of a page the waiter polls.
type Querier interface {
	Query(ctx context.Context, selector string) (found, visible bool, err error)
}

type Waiter struct {
	Interval time.Duration
}

func New() *Waiter { return &Waiter{Interval: DefaultInterval} }

// Wait reports whether distilled content became visible within timeout. A
// timeout is not an error; cancellation of ctx is. A zero timeout waits until
// the content shows up or ctx ends.
func (w *Waiter) Wait(ctx context.Context, page Querier, timeout time.Duration) (bool, error) {
	ok, err := w.poll(ctx, page, ContainerSelector, timeout, func(found, visible bool) bool { return found && visible })
	if err != nil {
		return false, err
	}
	if !ok {
		log.Debug().Dur("timeout", timeout).Msg("reading mode not ready, falling back to page")
	}
	return ok, nil
}

// WaitPresent waits for selector to exist. Unlike Wait, a timeout is an error.
func (w *Waiter) WaitPresent(ctx context.Context, page Querier, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultToolbarTimeout
	}
	ok, err := w.poll(ctx, page, selector, timeout, func(found, _ bool) bool { return found })
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("waiting for %s: %w", selector, context.DeadlineExceeded)
	}
	return nil
}

func (w *Waiter) poll(ctx context.Context, page Querier, selector string, timeout time.Duration, done func(found, visible bool) bool) (bool, error) {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	// a nil channel never fires
	var expired <-chan time.Time
	if timeout > 0 {
		deadline := time.NewTimer(timeout)
		defer deadline.Stop()
		expired = deadline.C
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		found, visible, err := query(ctx, page, selector, timeout)
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err == nil && done(found, visible) {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-expired:
			return false, nil
		case <-tick.C:
		}
	}
}

func query(ctx context.Context, page Querier, selector string, timeout time.Duration) (bool, bool, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return page.Query(ctx, selector)
}
