package rest

import (
	"log"
	"net/http"

	apperrors "github.com/abtestkit/abtestkit/internal/platform/errors"
	"github.com/abtestkit/abtestkit/internal/platform/requestctx"
	"github.com/abtestkit/abtestkit/internal/services/abtest/gateway"
)

type trackRequest struct {
	ContentRef   string `json:"contentRef"`
	ExperimentID string `json:"experimentId"`
	Kind         string `json:"kind"`
	Variant      string `json:"variant"`
	Timestamp    int64  `json:"ts"`
	Signature    string `json:"sig"`
}

// handleTrack accepts anonymous tracking submissions. A rate-limited drop
// still reports success so clients cannot probe the limiter.
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.gateway.Submit(r.Context(), gateway.RawEvent{
		ContentRef:   req.ContentRef,
		ExperimentID: req.ExperimentID,
		Kind:         req.Kind,
		Variant:      req.Variant,
		IP:           clientIP(r),
		UserAgent:    r.UserAgent(),
	}, gateway.AuthContext{
		SessionToken: bearerToken(r),
		OriginHost:   hostOf(r.Header.Get("Origin")),
		RefererHost:  hostOf(r.Header.Get("Referer")),
		Timestamp:    req.Timestamp,
		Signature:    req.Signature,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	body := map[string]any{"success": true}
	if result.ValidationWarning != "" {
		body["warning"] = result.ValidationWarning
	}
	writeJSON(w, http.StatusOK, body)
}

type resetRequest struct {
	ContentRef   string `json:"contentRef"`
	ExperimentID string `json:"experimentId"`
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	deleted, err := s.controller.Reset(r.Context(), req.ContentRef, req.ExperimentID)
	if err != nil {
		writeError(w, err)
		return
	}
	log.Printf("reset %s/%s by %s: %d events deleted",
		req.ContentRef, req.ExperimentID, requestctx.EditorIDFromContext(r.Context()), deleted)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"deleted": deleted,
	})
}

// knownMilestones are the onboarding flags the service records. The
// winner_applied flag may be re-marked; MarkMilestone already ignores
// repeats for all names.
var knownMilestones = map[string]bool{
	"first_enable":   true,
	"first_launch":   true,
	"first_finish":   true,
	"winner_applied": true,
}

type milestoneRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleMarkMilestone(w http.ResponseWriter, r *http.Request) {
	var req milestoneRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if !knownMilestones[req.Name] {
		writeError(w, apperrors.New(apperrors.CodeMilestoneUnknown, "unknown milestone"))
		return
	}
	first, err := s.store.MarkMilestone(r.Context(), req.Name)
	if err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeStorageFault, "mark milestone", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"first":   first,
	})
}

func (s *Server) handleListMilestones(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.SeenMilestones(r.Context())
	if err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeStorageFault, "list milestones", err))
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"milestones": names,
	})
}
