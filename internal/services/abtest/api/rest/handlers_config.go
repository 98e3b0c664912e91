package rest

import (
	"net/http"
	"strings"

	apperrors "github.com/abtestkit/abtestkit/internal/platform/errors"
	"github.com/abtestkit/abtestkit/internal/services/abtest/gateway"
	"github.com/abtestkit/abtestkit/internal/services/abtest/session"
)

// handleClientConfig hands a browser the signed material it needs to submit
// tracking events: a server timestamp and an HMAC over the content ref. The
// page itself must be same-origin or carry an editor session.
func (s *Server) handleClientConfig(w http.ResponseWriter, r *http.Request) {
	contentRef := strings.TrimSpace(r.URL.Query().Get("contentRef"))
	if contentRef == "" {
		writeError(w, apperrors.New(apperrors.CodeContentRefInvalid, "contentRef is required"))
		return
	}

	if !s.clientConfigAuthorized(r) {
		writeError(w, apperrors.New(apperrors.CodeTrackingUnauthorized, "unauthorized"))
		return
	}

	ts := s.now().Unix()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"contentRef": contentRef,
		"ts":         ts,
		"sig":        gateway.MakeSignature(contentRef, ts, s.secret),
		"trackUrl":   "/v1/track",
	})
}

func (s *Server) clientConfigAuthorized(r *http.Request) bool {
	if token := bearerToken(r); token != "" {
		if _, err := session.Validate(token, s.session); err == nil {
			return true
		}
	}
	if s.siteHost == "" {
		return false
	}
	return hostOf(r.Header.Get("Origin")) == s.siteHost ||
		hostOf(r.Header.Get("Referer")) == s.siteHost
}
