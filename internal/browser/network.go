package browser

import "github.com/go-rod/rod/lib/proto"

// networkTracker folds CDP Network events into NetworkEvents. Each redirect
// hop is reported as its own finished request so the redirecting response
// keeps its Location header. It is not safe for concurrent use.
type networkTracker struct {
	states map[proto.NetworkRequestID]*requestState
}

type requestState struct {
	url  string
	hops int
	resp *proto.NetworkResponse
}

func newNetworkTracker() *networkTracker {
	return &networkTracker{states: map[proto.NetworkRequestID]*requestState{}}
}

func (t *networkTracker) requestWillBeSent(e *proto.NetworkRequestWillBeSent) []NetworkEvent {
	if e.Request == nil {
		return nil
	}
	var out []NetworkEvent
	st := t.states[e.RequestID]
	if st != nil && e.RedirectResponse != nil {
		out = append(out, finished(e.RequestID, st.url, e.RedirectResponse, true))
		st.hops++
		st.url = e.Request.URL
		st.resp = nil
	} else {
		st = &requestState{url: e.Request.URL}
		t.states[e.RequestID] = st
	}
	return append(out, NetworkEvent{Kind: RequestIssued, RequestID: string(e.RequestID), URL: e.Request.URL})
}

func (t *networkTracker) responseReceived(e *proto.NetworkResponseReceived) {
	if st := t.states[e.RequestID]; st != nil {
		st.resp = e.Response
	}
}

// done settles a request on loadingFinished or loadingFailed. A request that
// failed after its response arrived (an aborted download) still finishes with
// that response; one that never got a response reports nothing.
func (t *networkTracker) done(id proto.NetworkRequestID) []NetworkEvent {
	st := t.states[id]
	delete(t.states, id)
	if st == nil || st.resp == nil {
		return nil
	}
	return []NetworkEvent{finished(id, st.url, st.resp, st.hops > 0)}
}

func (t *networkTracker) loadingFinished(e *proto.NetworkLoadingFinished) []NetworkEvent {
	return t.done(e.RequestID)
}

func (t *networkTracker) loadingFailed(e *proto.NetworkLoadingFailed) []NetworkEvent {
	return t.done(e.RequestID)
}

func finished(id proto.NetworkRequestID, url string, resp *proto.NetworkResponse, redirected bool) NetworkEvent {
	headers := make(map[string]string, len(resp.Headers))
	for k, v := range resp.Headers {
		headers[k] = v.Str()
	}
	return NetworkEvent{
		Kind:       RequestFinished,
		RequestID:  string(id),
		URL:        url,
		Status:     resp.Status,
		Headers:    headers,
		Redirected: redirected,
	}
}
