package extract

import (
	"strings"

	"github.com/hyperifyio/contentxtractor/internal/intercept"
)

// Reason records why a result has its Success value. It is not serialized.
type Reason string

const (
	ReasonOK                  Reason = "ok"
	ReasonNonOKStatus         Reason = "non_ok_status"
	ReasonContentTypeRejected Reason = "content_type_rejected"
)

const pdfContentType = "application/pdf"

var allowedContentTypes = []string{"text/html", "text/plain", pdfContentType}

type Result struct {
	Success                  bool              `json:"success"`
	RawHTML                  string            `json:"rawHtml,omitempty"`
	Markdown                 string            `json:"markdown"`
	ExtractedFromReadingMode bool              `json:"extractedFromReadingMode"`
	URLs                     []string          `json:"urls"`
	RequestResult            intercept.Outcome `json:"requestResult"`
	Reason                   Reason            `json:"-"`
}

// IsAllowedContentType reports whether ct starts with an accepted media type.
func IsAllowedContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	for _, allowed := range allowedContentTypes {
		if strings.HasPrefix(ct, allowed) {
			return true
		}
	}
	return false
}

func IsPDF(ct string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(ct)), pdfContentType)
}

// reasonFor applies the success policy to the primary response.
func reasonFor(o intercept.Outcome) Reason {
	if o.StatusCode != 200 {
		return ReasonNonOKStatus
	}
	if !IsAllowedContentType(o.ContentType) {
		return ReasonContentTypeRejected
	}
	return ReasonOK
}
