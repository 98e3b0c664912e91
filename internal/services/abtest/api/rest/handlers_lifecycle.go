package rest

import (
	"net/http"

	"github.com/abtestkit/abtestkit/internal/services/abtest/domain"
)

type enableRequest struct {
	ContentRef        string   `json:"contentRef"`
	ExperimentID      string   `json:"experimentId"`
	GroupKey          string   `json:"groupKey"`
	VariantA          string   `json:"variantA"`
	VariantB          string   `json:"variantB"`
	ConversionSources []string `json:"conversionSources"`
	ClickCapable      bool     `json:"clickCapable"`
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	var req enableRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	err := s.controller.Enable(r.Context(), domain.Experiment{
		ID:                req.ExperimentID,
		ContentRef:        req.ContentRef,
		GroupKey:          req.GroupKey,
		VariantA:          req.VariantA,
		VariantB:          req.VariantB,
		ConversionSources: req.ConversionSources,
		ClickCapable:      req.ClickCapable,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type lifecycleRequest struct {
	ContentRef   string `json:"contentRef"`
	ExperimentID string `json:"experimentId"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req lifecycleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.controller.Start(r.Context(), req.ContentRef, req.ExperimentID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req lifecycleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	progress, err := s.controller.CheckProgress(r.Context(), req.ContentRef, req.ExperimentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"state":        string(progress.State),
		"winner":       string(progress.Winner),
		"transitioned": progress.Transitioned,
		"decision": decisionPayload{
			ProbA:   progress.Decision.ProbA,
			ProbB:   progress.Decision.ProbB,
			CILower: progress.Decision.CILower,
			CIUpper: progress.Decision.CIUpper,
			Winner:  string(progress.Decision.Winner),
			Message: progress.Decision.Message,
			Counts:  toCountsPayload(progress.Decision.Counts),
		},
	})
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req lifecycleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.controller.Apply(r.Context(), req.ContentRef, req.ExperimentID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	var req lifecycleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.controller.Unlock(r.Context(), req.ContentRef, req.ExperimentID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
