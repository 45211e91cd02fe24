package extract

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hyperifyio/contentxtractor/internal/browser"
)

const (
	DefaultWidth              = 800
	DefaultHeight             = 600
	DefaultReadingModeTimeout = 15 * time.Second
)

type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Request is one extraction job. Start from DefaultRequest so omitted fields
// keep their defaults.
type Request struct {
	URL                string
	Headless           bool
	Viewport           Viewport
	DisableLinks       bool
	ReturnRawHTML      bool
	WaitUntil          browser.WaitUntil
	ReadingModeTimeout time.Duration
}

func DefaultRequest() Request {
	return Request{
		Headless:           true,
		Viewport:           Viewport{Width: DefaultWidth, Height: DefaultHeight},
		DisableLinks:       false,
		WaitUntil:          browser.WaitLoad,
		ReadingModeTimeout: DefaultReadingModeTimeout,
	}
}

// wireRequest is the JSON body. Pointers distinguish omitted fields; field
// names match case-insensitively through encoding/json.
type wireRequest struct {
	URL                *string            `json:"url"`
	ViewPortOptions    *Viewport          `json:"viewPortOptions"`
	DisableLinks       *bool              `json:"disableLinks"`
	ReturnRawHTML      *bool              `json:"returnRawHtml"`
	WaitUntil          *browser.WaitUntil `json:"waitUntil"`
	ReadingModeTimeout *int64             `json:"readingModeTimeout"`
}

// UnmarshalJSON overlays the fields present in b onto r.
func (r *Request) UnmarshalJSON(b []byte) error {
	var w wireRequest
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if w.URL != nil {
		r.URL = *w.URL
	}
	if w.ViewPortOptions != nil {
		r.Viewport = *w.ViewPortOptions
	}
	if w.DisableLinks != nil {
		r.DisableLinks = *w.DisableLinks
	}
	if w.ReturnRawHTML != nil {
		r.ReturnRawHTML = *w.ReturnRawHTML
	}
	if w.WaitUntil != nil {
		r.WaitUntil = *w.WaitUntil
	}
	if w.ReadingModeTimeout != nil {
		r.ReadingModeTimeout = time.Duration(*w.ReadingModeTimeout) * time.Millisecond
	}
	return nil
}

// DecodeRequest parses a JSON body on top of base.
func DecodeRequest(b []byte, base Request) (Request, error) {
	req := base
	if err := json.Unmarshal(b, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return req, nil
}

// Validate checks the request before any browser work starts.
func (r Request) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidRequest)
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return fmt.Errorf("%w: url: %v", ErrInvalidRequest, err)
	}
	if scheme := strings.ToLower(u.Scheme); (scheme != "http" && scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url must be an absolute http(s) address: %q", ErrInvalidRequest, r.URL)
	}
	if r.Viewport.Width <= 0 || r.Viewport.Height <= 0 {
		return fmt.Errorf("%w: viewport must be positive, got %dx%d", ErrInvalidRequest, r.Viewport.Width, r.Viewport.Height)
	}
	if r.ReadingModeTimeout < 0 {
		return fmt.Errorf("%w: readingModeTimeout must not be negative", ErrInvalidRequest)
	}
	if _, err := browser.ParseWaitUntil(string(r.WaitUntil)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// CacheKey is a canonical encoding of every field that affects the result.
func (r Request) CacheKey() string {
	return fmt.Sprintf("url=%s|headless=%t|viewport=%dx%d|links=%t|raw=%t|wait=%s|timeout=%d",
		r.URL, r.Headless, r.Viewport.Width, r.Viewport.Height, r.DisableLinks, r.ReturnRawHTML,
		r.WaitUntil, r.ReadingModeTimeout.Milliseconds())
}
