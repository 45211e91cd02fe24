package intercept

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/contentxtractor/internal/browser"
)

type chanSource struct {
	ch  chan browser.NetworkEvent
	err error
}

func (s *chanSource) WatchNetwork(ctx context.Context) (<-chan browser.NetworkEvent, error) {
	return s.ch, s.err
}

func issued(url string) browser.NetworkEvent {
	return browser.NetworkEvent{Kind: browser.RequestIssued, URL: url}
}

func finished(url string, status int, headers map[string]string) browser.NetworkEvent {
	return browser.NetworkEvent{Kind: browser.RequestFinished, URL: url, Status: status, Headers: headers}
}

func track(t *testing.T, events ...browser.NetworkEvent) *Tracker {
	t.Helper()
	src := &chanSource{ch: make(chan browser.NetworkEvent, len(events)+1)}
	for _, ev := range events {
		src.ch <- ev
	}
	close(src.ch)
	tr, err := Track(context.Background(), src)
	require.NoError(t, err)
	return tr
}

func TestTrack_PairsByURL(t *testing.T) {
	tr := track(t,
		issued("https://example.com/"),
		issued("https://example.com/app.js"),
		finished("https://example.com/app.js", 200, map[string]string{"content-type": "text/javascript"}),
		finished("https://example.com/", 200, map[string]string{"Content-Type": "text/html; charset=utf-8"}),
	)
	out, err := tr.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, Outcome{URL: "https://example.com/", ContentType: "text/html; charset=utf-8", StatusCode: 200}, out)
	u, ok := tr.URL()
	require.True(t, ok)
	require.Equal(t, "https://example.com/", u)
}

// A cached sub-resource can complete before the primary request is seen.
func TestTrack_SubresourceFinishingFirstIsIgnored(t *testing.T) {
	tr := track(t,
		finished("https://cdn.example.com/font.woff2", 200, map[string]string{"content-type": "font/woff2"}),
		issued("https://example.com/"),
		finished("https://example.com/", 200, map[string]string{"content-type": "text/html"}),
	)
	out, err := tr.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, "text/html", out.ContentType)
	require.Equal(t, "https://example.com/", out.URL)
}

func TestTrack_EarlyCompletionOfPrimaryIsReplayed(t *testing.T) {
	tr := track(t,
		finished("https://example.com/doc.pdf", 200, map[string]string{"content-type": "application/pdf"}),
		issued("https://example.com/doc.pdf"),
	)
	out, err := tr.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, "application/pdf", out.ContentType)
}

func TestTrack_FirstIssuedWins(t *testing.T) {
	tr := track(t,
		issued("https://a.example/"),
		issued("https://b.example/"),
		finished("https://b.example/", 200, nil),
	)
	_, err := tr.Wait(context.Background())
	require.ErrorIs(t, err, ErrNoOutcome)
}

func TestTrack_LocationSubstitutedOnlyWhenNot200(t *testing.T) {
	redirect := finished("https://example.com/old", 301, map[string]string{
		"LOCATION":     "https://example.com/new",
		"content-type": "text/html",
	})
	redirect.Redirected = true
	tr := track(t, issued("https://example.com/old"), redirect)
	out, err := tr.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, Outcome{URL: "https://example.com/new", ContentType: "text/html", Redirected: true, StatusCode: 301}, out)

	tr = track(t,
		issued("https://example.com/page"),
		finished("https://example.com/page", 200, map[string]string{"Location": "https://elsewhere.example/"}),
	)
	out, err = tr.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, "https://example.com/page", out.URL)
}

func TestTrack_WaitHonorsContext(t *testing.T) {
	src := &chanSource{ch: make(chan browser.NetworkEvent)}
	tr, err := Track(context.Background(), src)
	require.NoError(t, err)

	start := time.Now()
	_, err = tr.WaitFor(context.Background(), 20*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tr.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
	close(src.ch)
}

func TestTrack_SourceError(t *testing.T) {
	boom := errors.New("network domain unavailable")
	_, err := Track(context.Background(), &chanSource{err: boom})
	require.ErrorIs(t, err, boom)
}

func TestHeader_CaseInsensitive(t *testing.T) {
	h := map[string]string{"Content-Type": "text/plain"}
	require.Equal(t, "text/plain", Header(h, "content-type"))
	require.Equal(t, "text/plain", Header(h, "CONTENT-TYPE"))
	require.Equal(t, "", Header(h, "location"))
	require.Equal(t, "", Header(nil, "location"))
}
