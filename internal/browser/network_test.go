package browser

import (
	"encoding/json"
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/require"
)

func headers(t *testing.T, raw string) proto.NetworkHeaders {
	t.Helper()
	var h proto.NetworkHeaders
	require.NoError(t, json.Unmarshal([]byte(raw), &h))
	return h
}

func sent(id, url string, redirect *proto.NetworkResponse) *proto.NetworkRequestWillBeSent {
	return &proto.NetworkRequestWillBeSent{
		RequestID:        proto.NetworkRequestID(id),
		Request:          &proto.NetworkRequest{URL: url},
		RedirectResponse: redirect,
	}
}

func received(id string, resp *proto.NetworkResponse) *proto.NetworkResponseReceived {
	return &proto.NetworkResponseReceived{RequestID: proto.NetworkRequestID(id), Response: resp}
}

func TestNetworkTracker_RedirectHops(t *testing.T) {
	tr := newNetworkTracker()

	evs := tr.requestWillBeSent(sent("1", "http://example.com/", nil))
	require.Equal(t, []NetworkEvent{{Kind: RequestIssued, RequestID: "1", URL: "http://example.com/"}}, evs)

	hop := &proto.NetworkResponse{Status: 301, Headers: headers(t, `{"Location":"https://example.com/"}`)}
	evs = tr.requestWillBeSent(sent("1", "https://example.com/", hop))
	require.Len(t, evs, 2)
	require.Equal(t, NetworkEvent{
		Kind:       RequestFinished,
		RequestID:  "1",
		URL:        "http://example.com/",
		Status:     301,
		Headers:    map[string]string{"Location": "https://example.com/"},
		Redirected: true,
	}, evs[0])
	require.Equal(t, NetworkEvent{Kind: RequestIssued, RequestID: "1", URL: "https://example.com/"}, evs[1])

	tr.responseReceived(received("1", &proto.NetworkResponse{Status: 200, Headers: headers(t, `{"Content-Type":"text/html"}`)}))
	evs = tr.loadingFinished(&proto.NetworkLoadingFinished{RequestID: "1"})
	require.Len(t, evs, 1)
	require.Equal(t, RequestFinished, evs[0].Kind)
	require.Equal(t, "https://example.com/", evs[0].URL)
	require.Equal(t, 200, evs[0].Status)
	require.Equal(t, "text/html", evs[0].Headers["Content-Type"])
	require.True(t, evs[0].Redirected)
	require.Empty(t, tr.states)
}

func TestNetworkTracker_FailedAfterResponseStillFinishes(t *testing.T) {
	tr := newNetworkTracker()
	tr.requestWillBeSent(sent("dl", "https://example.com/file.pdf", nil))
	tr.responseReceived(received("dl", &proto.NetworkResponse{Status: 200, Headers: headers(t, `{"Content-Type":"application/pdf"}`)}))

	evs := tr.loadingFailed(&proto.NetworkLoadingFailed{RequestID: "dl", ErrorText: "net::ERR_ABORTED", Canceled: true})
	require.Len(t, evs, 1)
	require.Equal(t, RequestFinished, evs[0].Kind)
	require.Equal(t, "https://example.com/file.pdf", evs[0].URL)
	require.Equal(t, "application/pdf", evs[0].Headers["Content-Type"])
	require.False(t, evs[0].Redirected)
}

func TestNetworkTracker_NoResponseReportsNothing(t *testing.T) {
	tr := newNetworkTracker()
	tr.requestWillBeSent(sent("1", "https://unreachable.invalid/", nil))
	require.Empty(t, tr.loadingFailed(&proto.NetworkLoadingFailed{RequestID: "1", ErrorText: "net::ERR_NAME_NOT_RESOLVED"}))
	require.Empty(t, tr.states)

	// events for requests never seen are ignored
	tr.responseReceived(received("ghost", &proto.NetworkResponse{Status: 200}))
	require.Empty(t, tr.loadingFinished(&proto.NetworkLoadingFinished{RequestID: "ghost"}))
	require.Empty(t, tr.requestWillBeSent(&proto.NetworkRequestWillBeSent{RequestID: "bare"}))
}

func TestNetworkTracker_SubResourcesTrackedIndependently(t *testing.T) {
	tr := newNetworkTracker()
	tr.requestWillBeSent(sent("doc", "https://example.com/", nil))
	tr.requestWillBeSent(sent("css", "https://example.com/site.css", nil))
	tr.responseReceived(received("css", &proto.NetworkResponse{Status: 404}))
	tr.responseReceived(received("doc", &proto.NetworkResponse{Status: 200}))

	css := tr.loadingFinished(&proto.NetworkLoadingFinished{RequestID: "css"})
	require.Len(t, css, 1)
	require.Equal(t, "https://example.com/site.css", css[0].URL)
	require.Equal(t, 404, css[0].Status)

	doc := tr.loadingFinished(&proto.NetworkLoadingFinished{RequestID: "doc"})
	require.Len(t, doc, 1)
	require.Equal(t, "https://example.com/", doc[0].URL)
	require.Equal(t, 200, doc[0].Status)
	require.Empty(t, doc[0].Headers)

	// a settled request id is forgotten
	require.Empty(t, tr.loadingFinished(&proto.NetworkLoadingFinished{RequestID: "doc"}))
}
