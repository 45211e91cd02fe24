package readingmode

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// fakePanel becomes present after presentAt queries and visible after visibleAt.
type fakePanel struct {
	calls     int32
	presentAt int32
	visibleAt int32
	err       error
	selectors []string
}

func (f *fakePanel) Query(ctx context.Context, selector string) (bool, bool, error) {
	n := atomic.AddInt32(&f.calls, 1)
	f.selectors = append(f.selectors, selector)
	if f.err != nil {
		return false, false, f.err
	}
	found := f.presentAt > 0 && n >= f.presentAt
	visible := f.visibleAt > 0 && n >= f.visibleAt
	return found, visible, nil
}

func TestWait_VisibleContainer(t *testing.T) {
	w := &Waiter{Interval: time.Millisecond}
	p := &fakePanel{presentAt: 1, visibleAt: 3}
	ok, err := w.Wait(context.Background(), p, time.Second)
	if err != nil || !ok {
		t.Fatalf("expected ready, got ok=%v err=%v", ok, err)
	}
	if p.calls != 3 {
		t.Fatalf("expected 3 polls, got %d", p.calls)
	}
	if p.selectors[0] != ContainerSelector {
		t.Fatalf("unexpected selector %q", p.selectors[0])
	}
}

func TestWait_PresentButHiddenTimesOut(t *testing.T) {
	w := &Waiter{Interval: time.Millisecond}
	ok, err := w.Wait(context.Background(), &fakePanel{presentAt: 1}, 30*time.Millisecond)
	if err != nil {
		t.Fatalf("timeout must not be an error: %v", err)
	}
	if ok {
		t.Fatalf("expected not ready")
	}
}

func TestWait_QueryErrorsKeepPolling(t *testing.T) {
	w := &Waiter{Interval: time.Millisecond}
	ok, err := w.Wait(context.Background(), &fakePanel{err: errors.New("execution context was destroyed")}, 20*time.Millisecond)
	if err != nil || ok {
		t.Fatalf("expected quiet timeout, got ok=%v err=%v", ok, err)
	}
}

func TestWait_Canceled(t *testing.T) {
	w := &Waiter{Interval: time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	ok, err := w.Wait(ctx, &fakePanel{}, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if ok {
		t.Fatalf("expected not ready")
	}
}

func TestWaitPresent(t *testing.T) {
	w := &Waiter{Interval: time.Millisecond}
	p := &fakePanel{presentAt: 2}
	if err := w.WaitPresent(context.Background(), p, ToolbarSelector, time.Second); err != nil {
		t.Fatalf("WaitPresent: %v", err)
	}
	if p.selectors[0] != ToolbarSelector {
		t.Fatalf("unexpected selector %q", p.selectors[0])
	}

	err := w.WaitPresent(context.Background(), &fakePanel{}, ToolbarSelector, 20*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestWait_ZeroTimeoutWaitsForContent(t *testing.T) {
	w := &Waiter{Interval: time.Millisecond}
	// zero must not expire before the content appears
	p := &fakePanel{presentAt: 1, visibleAt: 50}
	ok, err := w.Wait(context.Background(), p, 0)
	if err != nil || !ok {
		t.Fatalf("expected ready, got ok=%v err=%v", ok, err)
	}
	if p.calls != 50 {
		t.Fatalf("expected 50 polls, got %d", p.calls)
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	ok, err = w.Wait(ctx, &fakePanel{presentAt: 1}, 0)
	if !errors.Is(err, context.Canceled) || ok {
		t.Fatalf("zero timeout should end only with ctx, got ok=%v err=%v", ok, err)
	}
}
