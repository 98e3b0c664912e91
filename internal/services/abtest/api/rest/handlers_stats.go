package rest

import (
	"net/http"
	"strings"

	apperrors "github.com/abtestkit/abtestkit/internal/platform/errors"
	"github.com/abtestkit/abtestkit/internal/services/abtest/domain"
	"github.com/abtestkit/abtestkit/internal/services/abtest/storage"
)

type tallyPayload struct {
	Impressions int64 `json:"impressions"`
	Clicks      int64 `json:"clicks"`
}

type countsPayload struct {
	A tallyPayload `json:"A"`
	B tallyPayload `json:"B"`
}

func toCountsPayload(counts storage.VariantCounts) countsPayload {
	return countsPayload{
		A: tallyPayload{Impressions: counts.A.Impressions, Clicks: counts.A.Clicks},
		B: tallyPayload{Impressions: counts.B.Impressions, Clicks: counts.B.Clicks},
	}
}

// splitExperimentIDs accepts comma or pipe separated id lists.
func splitExperimentIDs(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '|'
	})
	var ids []string
	for _, field := range fields {
		if id := strings.TrimSpace(field); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// handleStats returns raw per-variant counts. A single experimentId yields
// the flat counts shape; experimentIds yields a map keyed by id.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	contentRef := strings.TrimSpace(query.Get("contentRef"))
	if contentRef == "" {
		writeError(w, apperrors.New(apperrors.CodeContentRefInvalid, "contentRef is required"))
		return
	}

	if raw := query.Get("experimentIds"); raw != "" {
		ids := splitExperimentIDs(raw)
		sanitized := make([]string, 0, len(ids))
		for _, id := range ids {
			if clean := domain.SanitizeExperimentID(id); clean != "" {
				sanitized = append(sanitized, clean)
			}
		}
		counts, err := s.store.CountEventsMany(r.Context(), contentRef, sanitized)
		if err != nil {
			writeError(w, apperrors.Wrap(apperrors.CodeStorageFault, "count events", err))
			return
		}
		payload := make(map[string]countsPayload, len(counts))
		for id, c := range counts {
			payload[id] = toCountsPayload(c)
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	experimentID := domain.SanitizeExperimentID(query.Get("experimentId"))
	if experimentID == "" {
		// No usable id still answers with an empty tally, matching what a
		// dashboard expects while an experiment has no data yet.
		writeJSON(w, http.StatusOK, toCountsPayload(storage.VariantCounts{}))
		return
	}
	counts, err := s.store.CountEvents(r.Context(), contentRef, experimentID)
	if err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeStorageFault, "count events", err))
		return
	}
	writeJSON(w, http.StatusOK, toCountsPayload(counts))
}

type decisionPayload struct {
	ProbA   float64       `json:"probA"`
	ProbB   float64       `json:"probB"`
	CILower float64       `json:"ciLower"`
	CIUpper float64       `json:"ciUpper"`
	Winner  string        `json:"winner,omitempty"`
	Message string        `json:"message,omitempty"`
	Counts  countsPayload `json:"counts"`
}

// handleEvaluate runs one Bayesian evaluation. Low data is not an error:
// the response is always a well-formed decision.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	decision, err := s.decider.Evaluate(r.Context(), query.Get("contentRef"), query.Get("experimentId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionPayload{
		ProbA:   decision.ProbA,
		ProbB:   decision.ProbB,
		CILower: decision.CILower,
		CIUpper: decision.CIUpper,
		Winner:  string(decision.Winner),
		Message: decision.Message,
		Counts:  toCountsPayload(decision.Counts),
	})
}
