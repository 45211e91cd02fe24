package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hyperifyio/contentxtractor/internal/extract"
)

// StatusClientClosedRequest is reported when the caller went away before the
// extraction finished.
const StatusClientClosedRequest = 499

// HealthCheck reports liveness and the running version.
func HealthCheck(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version})
	}
}

// Extract decodes an extraction request over the service defaults and runs it.
// A result with Success false is returned as-is with 400.
func Extract(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req, err := extract.DecodeRequest(body, svc.BaseRequest())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		res, err := svc.Extract(c.Request.Context(), req)
		if err != nil {
			status := StatusFor(err)
			l := loggerFrom(c)
			msg := err.Error()
			if status == http.StatusBadGateway {
				// details stay in the log
				l.Warn().Err(err).Str("url", req.URL).Msg("extract failed")
				msg = "extraction failed"
			} else {
				l.Debug().Err(err).Str("url", req.URL).Int("status", status).Msg("extract failed")
			}
			c.JSON(status, gin.H{"error": msg, "kind": kindLabel(err)})
			return
		}
		if !res.Success {
			c.JSON(http.StatusBadRequest, res)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// StatusFor maps an extraction error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, extract.ErrInvalidRequest):
		return http.StatusBadRequest
	case extract.IsKind(err, extract.KindNavigation):
		return http.StatusBadRequest
	case extract.IsKind(err, extract.KindCanceled):
		return StatusClientClosedRequest
	default:
		return http.StatusBadGateway
	}
}

func kindLabel(err error) string {
	if errors.Is(err, extract.ErrInvalidRequest) {
		return "invalid_request"
	}
	return string(extract.KindOf(err))
}
